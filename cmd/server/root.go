package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lyallcooper/legalreview/internal/app"
	"github.com/lyallcooper/legalreview/internal/webfs"
)

type serveOptions struct {
	port int
	bind string
	db   string
}

var serveOpts serveOptions

var rootCmd = &cobra.Command{
	Use:   "legalreview",
	Short: "Contract review workspace with simulated deep scans",
	Long: `legalreview serves the contract review UI: a review workspace with the
document outline, tracked changes and quality metrics, and a deep-scan page
that runs simulated multi-contract analyses with live progress.

Without a subcommand it behaves like "serve".`,
	Version:       version,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	Example: `  legalreview serve
  legalreview serve --port 9000 --bind 127.0.0.1
  legalreview serve --db ~/.local/share/legalreview/review.db`,
	RunE: runServe,
}

func init() {
	rootCmd.SetVersionTemplate("legalreview {{.Version}} (" + commit + ")\n")
	addServeFlags(rootCmd.Flags())
	addServeFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd, scanCmd)
}

func addServeFlags(f *pflag.FlagSet) {
	f.IntVarP(&serveOpts.port, "port", "p", 0, "Port to listen on (default: $LEGALREVIEW_PORT or 8080)")
	f.StringVar(&serveOpts.bind, "bind", "", "Address to bind to (default: all interfaces)")
	f.StringVar(&serveOpts.db, "db", "", "SQLite database path (default: $LEGALREVIEW_DB_PATH or in-memory)")
}

func runServe(cmd *cobra.Command, args []string) error {
	server, err := app.CreateServer(app.ServerConfig{
		Port:        serveOpts.port,
		DBPath:      serveOpts.db,
		Version:     version,
		Commit:      commit,
		WebFS:       webfs.FS,
		BindAddress: serveOpts.bind,
	})
	if err != nil {
		return err
	}
	defer server.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.HTTP.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server listening on http://localhost:%d", server.Config.Port)
	if err := server.HTTP.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	<-shutdownDone

	log.Println("Server stopped")
	return nil
}
