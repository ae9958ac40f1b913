// Package app provides shared application initialization logic used by both
// the server (CLI) and desktop (Wails) entry points.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lyallcooper/legalreview/internal/config"
	"github.com/lyallcooper/legalreview/internal/db"
	"github.com/lyallcooper/legalreview/internal/handlers"
	"github.com/lyallcooper/legalreview/internal/scheduler"
	"github.com/lyallcooper/legalreview/internal/services"
)

// csrfCleanupSchedule runs the CSRF token cleanup job
const csrfCleanupSchedule = "@hourly"

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Port to listen on. If 0, uses config default.
	Port int

	// DBPath overrides LEGALREVIEW_DB_PATH when set.
	DBPath string

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string

	// WebFS is the embedded filesystem containing web assets.
	WebFS fs.FS

	// BindAddress is the address to bind to. Defaults to "" (all interfaces).
	// Use "127.0.0.1" for desktop mode to only allow local connections.
	BindAddress string

	// DisableCSRF disables CSRF protection. Use for desktop mode where
	// the server only accepts local connections and CSRF isn't a concern.
	DisableCSRF bool
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Database  *db.DB
	DeepScan  *services.DeepScan
	Scheduler *scheduler.Scheduler
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	// Load configuration from environment
	appCfg := config.Load()

	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}
	if cfg.DBPath != "" {
		appCfg.DBPath = config.ExpandPath(cfg.DBPath)
	}

	log.Printf("legalreview starting...")
	log.Printf("  Database: %s", appCfg.DBPath)
	log.Printf("  Port: %d", appCfg.Port)
	log.Printf("  Checkpoints: %s every %s", appCfg.Checkpoints, appCfg.CheckpointInterval)
	log.Printf("  Session TTL: %s", appCfg.SessionTTL)

	// Initialize database
	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize deep-scan service
	deepScan, err := services.NewDeepScan(database, services.DeepScanOptions{
		Checkpoints:     appCfg.Checkpoints,
		Interval:        appCfg.CheckpointInterval,
		AnalysisTimeout: appCfg.AnalysisTimeout,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize deep scan: %w", err)
	}

	// Initialize scheduler
	sched, err := scheduler.New(deepScan, appCfg.SessionTTL, appCfg.SweepSchedule)
	if err != nil {
		deepScan.Shutdown()
		database.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	if !cfg.DisableCSRF {
		err := sched.AddJob("csrf-cleanup", csrfCleanupSchedule, func(_ context.Context) {
			if n := handlers.CleanupCSRFTokens(); n > 0 {
				log.Printf("scheduler: dropped %d expired CSRF token(s)", n)
			}
		})
		if err != nil {
			deepScan.Shutdown()
			database.Close()
			return nil, fmt.Errorf("failed to schedule CSRF cleanup: %w", err)
		}
	}
	sched.Start()

	// Build version string
	versionStr := buildVersionString(cfg.Version, cfg.Commit)

	// Initialize handlers
	h, err := handlers.New(deepScan, appCfg, cfg.WebFS, versionStr, cfg.DisableCSRF)
	if err != nil {
		sched.Stop()
		deepScan.Shutdown()
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, appCfg.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}
	// Cancelling the scans ends their SSE streams
	server.RegisterOnShutdown(deepScan.Shutdown)

	return &Server{
		HTTP:      server,
		Config:    appCfg,
		Database:  database,
		DeepScan:  deepScan,
		Scheduler: sched,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.DeepScan != nil {
		s.DeepScan.Shutdown()
	}
	if s.Database != nil {
		s.Database.Close()
	}
}

func buildVersionString(version, commit string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
