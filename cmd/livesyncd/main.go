package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/guideworks/livesync/internal/docstore"
	"github.com/guideworks/livesync/internal/httpapi"
	"github.com/guideworks/livesync/internal/realtime"
)

func main() {
	addr := os.Getenv("LIVESYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	backend, err := docstore.OpenStateBackend(os.Getenv("LIVESYNC_STATE_DSN"))
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}
	store := docstore.NewStore(docstore.StoreOptions{
		StateBackend:    backend,
		Logger:          log.New(os.Stderr, "docstore: ", log.LstdFlags),
		SubscribeBuffer: intEnv("LIVESYNC_SUBSCRIBE_BUFFER", 0),
	})
	defer store.Close()

	hub := realtime.NewHub(store, log.New(os.Stderr, "realtime: ", log.LstdFlags))
	server, err := httpapi.NewServer(store, hub, httpapi.Config{
		PIN:              os.Getenv("LIVESYNC_PIN"),
		MaxBodyBytes:     int64Env("LIVESYNC_MAX_BODY_BYTES", 0),
		PinAttemptMax:    intEnv("LIVESYNC_PIN_ATTEMPT_MAX", 0),
		PinAttemptWindow: durationEnv("LIVESYNC_PIN_ATTEMPT_WINDOW", 0),
		MediaDir:         os.Getenv("LIVESYNC_MEDIA_DIR"),
		PublicBaseURL:    publicBaseURL(addr),
		Logger:           log.New(os.Stderr, "httpapi: ", log.LstdFlags),
	})
	if err != nil {
		log.Fatalf("failed to initialize http server: %v", err)
	}

	log.Printf("livesyncd listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func publicBaseURL(addr string) string {
	if base := os.Getenv("LIVESYNC_PUBLIC_BASE_URL"); base != "" {
		return base
	}
	return "http://localhost" + addr
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
