package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"

	"github.com/lyallcooper/legalreview/internal/app"
	"github.com/lyallcooper/legalreview/internal/webfs"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// preferredPort keeps the webview origin stable between launches when free
const preferredPort = 18090

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	reportsDir := setDesktopDefaults()

	port, err := findAvailablePort()
	if err != nil {
		return fmt.Errorf("failed to find available port: %w", err)
	}

	server, err := app.CreateServer(app.ServerConfig{
		Port:        port,
		Version:     version,
		Commit:      commit,
		WebFS:       webfs.FS,
		BindAddress: "127.0.0.1", // Only local connections
		DisableCSRF: true,        // The webview is the only client
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	target := &url.URL{Scheme: "http", Host: server.HTTP.Addr}
	desktopApp := NewApp(reportsDir)

	return wails.Run(appOptions(desktopApp, httputil.NewSingleHostReverseProxy(target), server))
}

// appOptions builds the window. The webview loads every page through proxy
// from the internal server, which runs for the lifetime of the window.
func appOptions(desktopApp *App, proxy http.Handler, server *app.Server) *options.App {
	return &options.App{
		Title:     "Legal Review",
		Width:     1280,
		Height:    820,
		MinWidth:  960,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Handler: proxy,
		},
		OnStartup: func(ctx context.Context) {
			desktopApp.startup(ctx)
			go func() {
				log.Printf("Internal server listening on http://%s", server.HTTP.Addr)
				if err := server.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					log.Printf("HTTP server error: %v", err)
				}
			}()
		},
		OnShutdown: func(ctx context.Context) {
			log.Println("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.HTTP.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP shutdown error: %v", err)
			}
			server.Cleanup()
			log.Println("Shutdown complete")
		},
		Bind: []interface{}{
			desktopApp,
		},
		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "Legal Review",
				Message: fmt.Sprintf("Contract review workspace\n\nVersion: %s", displayVersion()),
			},
		},
		Windows: &windows.Options{},
	}
}

// findAvailablePort returns preferredPort when it is free and any free
// localhost port otherwise.
func findAvailablePort() (int, error) {
	if l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferredPort)); err == nil {
		l.Close()
		return preferredPort, nil
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// setDesktopDefaults applies desktop-specific environment defaults and
// returns the folder where exported reports are offered for saving.
func setDesktopDefaults() string {
	// A single local user keeps one workspace for as long as the app is open
	if os.Getenv("LEGALREVIEW_SESSION_TTL") == "" {
		os.Setenv("LEGALREVIEW_SESSION_TTL", "720h")
	}
	return filepath.Join(appDataDir(), "Reports")
}

// appDataDir returns the platform-appropriate application data directory.
func appDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Legal Review")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Legal Review")
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "legalreview")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "legalreview")
	}
}

func displayVersion() string {
	if version == "dev" {
		return "Development"
	}
	return version
}
