package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gamediary/internal/capture"
	"gamediary/internal/config"
	"gamediary/internal/ingest"
	"gamediary/internal/media"
	"gamediary/internal/notify"
	"gamediary/internal/server"
	"gamediary/internal/session"
	"gamediary/internal/storage"
	"gamediary/internal/upload"
	"gamediary/internal/users"
)

func gracefulShutdown(fiberServer *server.FiberServer, rtmpServer *ingest.RTMPServer, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	if rtmpServer != nil {
		if err := rtmpServer.Close(); err != nil {
			log.Printf("RTMP server shutdown error: %v", err)
		}
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fiberServer.ShutdownWithContext(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Server starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Storage bucket: %s", cfg.Storage.Bucket)
	log.Printf("Capture backend: %s", cfg.Capture.Backend)

	for _, dir := range []string{
		cfg.Capture.RecordingsDir,
		cfg.Capture.ScreenshotsDir,
		cfg.Capture.ThumbnailsDir,
		cfg.Capture.AudioDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	ctx := context.Background()
	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:     cfg.Storage.Region,
		Bucket:     cfg.Storage.Bucket,
		Prefix:     cfg.Storage.Prefix,
		Endpoint:   cfg.Storage.Endpoint,
		PresignTTL: cfg.Storage.PresignTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	sessions := session.NewRegistry(store, cfg.User.Username)
	userService := users.NewUserService(store)
	catalog := media.NewCatalog(store, store, store)
	pipeline := upload.NewPipeline(store, sessions)

	hub := notify.NewHub()
	go hub.Run()

	grabber := capture.NewDisplayGrabber()

	var video capture.Recorder
	switch cfg.Capture.Backend {
	case config.BackendFFmpeg:
		video = capture.NewFFmpegRecorder(cfg.Capture.FFmpegPath, cfg.Capture.RecordingsDir, cfg.Capture.UDPPort)
	default:
		video = capture.NewScreenRecorder(grabber, cfg.Capture.RecordingsDir, cfg.Capture.FrameRate,
			capture.FFmpegRemux(cfg.Capture.FFmpegPath))
	}

	audioInput, err := capture.NewMalgoInput()
	if err != nil {
		log.Fatalf("Failed to initialize audio input: %v", err)
	}
	defer audioInput.Close()

	captureHandler := capture.NewCaptureHandler(
		video,
		capture.NewAudioRecorder(audioInput, cfg.Capture.AudioDir),
		capture.NewScreenshotter(grabber, cfg.Capture.ScreenshotsDir),
		capture.NewThumbnailer(cfg.Capture.FFmpegPath),
		pipeline,
		hub,
		cfg.User.Username,
		cfg.Capture.ThumbnailsDir,
	)

	app := server.New(cfg, server.Deps{
		Store:    store,
		Sessions: sessions,
		Users:    userService,
		Catalog:  catalog,
		Capture:  captureHandler,
		Hub:      hub,
	})
	app.RegisterFiberRoutes()

	var rtmpServer *ingest.RTMPServer
	if cfg.Ingest.Enabled {
		rtmpServer = ingest.NewRTMPServer(
			fmt.Sprintf(":%s", cfg.Ingest.Port),
			cfg.User.Username,
			cfg.Capture.RecordingsDir,
			func(path string) {
				// Ingest runs next to the S3 client, so upload through
				// the SDK directly instead of the presign round trip.
				ctx := context.Background()
				gameID := ""
				if latest, err := sessions.GetLatestSession(ctx); err == nil && latest != nil {
					gameID = latest.GameID
				}
				key := storage.ObjectKey(cfg.User.Username, gameID, filepath.Base(path))
				if err := store.UploadFile(ctx, path, key); err != nil {
					log.Printf("Ingest upload failed for %s: %v", path, err)
					return
				}
				hub.BroadcastMediaEvent(media.TypeVideo, filepath.Base(path), cfg.User.Username)
			},
		)
		go func() {
			if err := rtmpServer.Start(); err != nil {
				log.Printf("RTMP server stopped: %v", err)
			}
		}()
	}

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		err := app.Listen(addr)
		if err != nil {
			panic(fmt.Sprintf("http server error: %s", err))
		}
	}()

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(app, rtmpServer, done)

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")
}
