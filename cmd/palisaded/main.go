// Palisade server
// HTTP front that authenticates callers (Basic/Digest) and gates every
// request through the security model.
package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/palisadehq/palisade/internal/cachectl"
	"github.com/palisadehq/palisade/internal/config"
	"github.com/palisadehq/palisade/internal/gate"
	"github.com/palisadehq/palisade/internal/version"
	"github.com/palisadehq/palisade/pkg/events"
	"github.com/palisadehq/palisade/pkg/httpauth"
	"github.com/palisadehq/palisade/pkg/secmodel"
	"github.com/palisadehq/palisade/pkg/store"
)

var (
	listenAddr   = flag.String("listen", ":18080", "HTTP listen address")
	dbPath       = flag.String("db", "", "Database path (default: ~/.local/share/palisade/palisade.db)")
	configPath   = flag.String("config", "", "Config path (default: next to the database)")
	snapshotPath = flag.String("snapshot", "", "Security snapshot path (default: next to the database)")
	realm        = flag.String("realm", "palisade", "HTTP authentication realm")
	authMode     = flag.String("auth-mode", "digest", "HTTP challenge scheme: basic or digest")
)

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	flag.Parse()

	log.Printf("Palisade server %s starting...", version.String())

	path := *dbPath
	if path == "" {
		path = store.DefaultPath()
	}

	db, err := store.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(filepath.Dir(path), "config.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	snapPath := *snapshotPath
	if snapPath == "" {
		snapPath = filepath.Join(filepath.Dir(path), "security.snapshot.json")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Password changes must reach the digest authenticator while the
	// plaintext is still available, so the bus is wired before anything can
	// mutate credentials.
	bus := events.NewBus()
	db.SetBus(bus)

	// Select the active security model per configuration.
	var model secmodel.SecurityModel = db
	if cfg.Get(cachectl.KeyDefaultModel, cachectl.FallbackModel) == cachectl.SentinelCache {
		model = secmodel.NewCache(db, snapPath, secmodel.WithCacheLogger(logger))
		log.Printf("Security model cache enabled, snapshot at %s", snapPath)
	}

	auth := httpauth.NewAuthenticator(*realm, httpauth.NewMemoryNonceStore(), db, model,
		httpauth.WithLogger(logger),
		httpauth.WithBus(bus),
	)
	defer auth.Close()
	if err := auth.SetMode(httpauth.Mode(*authMode)); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	requestGate := gate.New(model,
		gate.WithAuthenticator(auth),
		gate.WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth(model))
	mux.HandleFunc("GET /whoami", handleWhoAmI)
	mux.HandleFunc("POST /logout", handleLogout(auth))

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: loggingMiddleware(requestGate.Wrap(mux)),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		httpServer.Close()
	}()

	log.Printf("HTTP server listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Server stopped")
}

// loggingMiddleware logs each request with its duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
