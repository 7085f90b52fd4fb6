// Package server wires HTTP handlers into a ServeMux for the WebSocket
// transport.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with the health check,
// WebSocket endpoint and test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler())
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
