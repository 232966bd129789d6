package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"visionrelay/bridge"
)

// main wires the relay server and, when an upload endpoint is
// configured, the capture watcher plus the upload/poll bridge.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := LoadConfig()

	db, err := openDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	startCleanupJob(db, cfg.TickMaxAge)

	var prompt *bridge.PromptClient
	if cfg.PromptEndpoint != "" {
		prompt = bridge.NewPromptClient(cfg.PromptEndpoint)
	}
	relay := NewRelay(db, prompt)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"}, // Allow any origin
		AllowedMethods: []string{"GET", "POST", "DELETE", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(relay.Router())

	server := &http.Server{
		Addr:    cfg.RelayAddr,
		Handler: handler,
	}

	var runner *bridge.Runner
	var display *bridge.DisplayAdapter
	var frameWatcher *FrameWatcher

	if cfg.UploadEndpoint != "" {
		frameWatcher, err = NewFrameWatcher(cfg.CaptureDir, cfg.RemoveFrames)
		if err != nil {
			log.Fatalf("Failed to create frame watcher: %v", err)
		}
		if err := frameWatcher.Start(); err != nil {
			log.Fatalf("Failed to start frame watcher: %v", err)
		}

		store := bridge.NewStore()
		client := bridge.NewClient(cfg.UploadEndpoint)
		runner = bridge.NewRunner(client, frameWatcher, store, bridge.CycleConfig{
			UploadInterval: cfg.UploadInterval,
			PollDelay:      cfg.PollDelay,
			PollInterval:   cfg.PollInterval,
		})
		runner.Start()

		display = bridge.NewDisplayAdapter(store, &bridge.LogSurface{}, time.Second)
		display.Start()

		log.Printf("Bridge started against %s", cfg.UploadEndpoint)
	} else {
		log.Printf("No upload endpoint configured, running relay only")
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		log.Printf("Shutting down")
		if runner != nil {
			runner.Stop()
		}
		if display != nil {
			display.Stop()
		}
		if frameWatcher != nil {
			frameWatcher.Stop()
		}
		server.Close()
	}()

	log.Printf("Relay listening on %s", cfg.RelayAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
