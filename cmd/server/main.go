// Command server starts the PirateFishing multiplayer session server.
//
// Rooms are seeded once at startup; configuration comes from the environment
// (optionally via a .env file). The process shuts down gracefully on SIGINT
// or SIGTERM: the HTTP listener drains first, then the hub closes every live
// session connection.
package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DwifteJB/PirateFishing/internal/server"
)

func main() {
	// Load .env if present (ignore a missing file)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: error loading .env file: %v", err)
	}

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	registry := server.NewRegistry(cfg.RoomCount, cfg.RoomCapacity)
	for _, room := range registry.ListRooms() {
		log.Printf("Seeded room %s (%s), capacity %d", room.ID, room.Name, room.MaxPlayers)
	}

	hub := server.NewHub()
	go hub.Run()

	mux := server.SetupRoutes(hub, registry)
	httpServer := server.CreateServer(cfg.Port, mux)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Printf("Received signal: %v. Shutting down...", sig)

	if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
