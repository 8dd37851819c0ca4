// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: room discovery, the per-room session endpoint, the health check,
// and, when a static directory is configured, the built browser client.
func SetupRoutes(hub *Hub, registry *Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /server/get", RoomListHandler(registry))
	mux.HandleFunc("GET /server/{id}", SessionHandler(hub, registry))
	mux.HandleFunc("GET /healthz", HealthHandler)

	// The fallback is GET-scoped so the method-qualified patterns above keep
	// answering non-GET requests with 405 rather than falling through here.
	if dir := currentConfig().StaticDir; dir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(dir)))
	} else {
		mux.HandleFunc("GET /{$}", HealthHandler)
	}
	return mux
}
