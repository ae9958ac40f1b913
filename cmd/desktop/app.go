package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct holds the Wails application context and provides
// methods that can be called from the frontend.
type App struct {
	ctx        context.Context
	reportsDir string
}

// NewApp creates a new App instance.
func NewApp(reportsDir string) *App {
	return &App{reportsDir: reportsDir}
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// SaveReport asks where to save an exported report and writes it there.
// It returns the chosen path, or "" when the dialog was dismissed.
func (a *App) SaveReport(filename, content string) (string, error) {
	if err := os.MkdirAll(a.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports folder: %w", err)
	}
	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:            "Save deep scan report",
		DefaultDirectory: a.reportsDir,
		DefaultFilename:  filename,
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

// OpenReportsFolder opens the default folder for saved reports.
func (a *App) OpenReportsFolder() error {
	if err := os.MkdirAll(a.reportsDir, 0755); err != nil {
		return err
	}
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", a.reportsDir)
	case "windows":
		cmd = exec.Command("explorer", a.reportsDir)
	default: // Linux
		cmd = exec.Command("xdg-open", a.reportsDir)
	}
	return cmd.Start()
}
