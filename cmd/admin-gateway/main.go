package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reportmitra.org/internal/config"
	"reportmitra.org/internal/gateway"
	"reportmitra.org/internal/obs"
	"reportmitra.org/internal/session"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Sessions live in Postgres when a DSN is configured, so logins survive a
	// gateway restart. Without one the in-memory store is enough for a single
	// instance.
	var sessions session.Store
	var db *sql.DB
	if dsn := cfg.Session.PostgresDSN; dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		pg := session.NewPostgresStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pg.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("session schema: %v", err)
		}
		cancel()
		sessions = pg
	} else {
		sessions = session.NewMemoryStore()
	}

	cookies, err := session.NewCookieCodec(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.CookieName, cfg.Session.CookieSecure)
	if err != nil {
		log.Fatalf("session cookies: %v", err)
	}

	api := gateway.New(gateway.Options{
		UpstreamURL:     cfg.Upstream.BaseURL,
		UpstreamTimeout: cfg.Upstream.RequestTimeout,
		Version:         version,
		RateBurst:       cfg.Rate.Burst,
		RatePerSec:      cfg.Rate.PerSec,
		AllowedOrigins:  splitOrigins(os.Getenv("RM_ALLOWED_ORIGINS")),
	}, sessions, cookies)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	log.Printf("Starting reportmitra-admin %s on %s (upstream %s)", version, srv.Addr, cfg.Upstream.BaseURL)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
