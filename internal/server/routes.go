package server

import "net/http"

// setupRoutes wires the API surface onto a ServeMux
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job collection: list + submit
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:  s.jobHandler.ListJobs,
			http.MethodPost: s.jobHandler.SubmitJob,
		})
	})

	// Job item routes: status, cancel, result
	mux.HandleFunc("/api/jobs/", s.jobHandler.HandleJobRoutes)

	// Service status
	mux.HandleFunc("/api/status", s.statusHandler.GetStatus)

	// Live event stream
	mux.HandleFunc("/ws/events", s.wsHandler.HandleWebSocket)

	return mux
}
