package handlers

import (
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lyallcooper/legalreview/internal/config"
	"github.com/lyallcooper/legalreview/internal/review"
	"github.com/lyallcooper/legalreview/internal/services"
)

// Handler holds all HTTP handlers
type Handler struct {
	deepScan    *services.DeepScan
	cfg         *config.Config
	webFS       fs.FS
	staticFS    fs.FS
	funcMap     template.FuncMap
	version     string
	disableCSRF bool
}

// New creates a new Handler. webFS must hold templates/ and static/.
func New(deepScan *services.DeepScan, cfg *config.Config, webFS fs.FS, version string, disableCSRF bool) (*Handler, error) {
	// Template functions
	funcMap := template.FuncMap{
		"formatBytes": formatBytes,
		"formatTime":  formatTime,
		"timeAgo":     timeAgo,
		"percent":     percent,
		"add":         func(a, b int) int { return a + b },
		"lower":       strings.ToLower,
		"join":        strings.Join,
	}

	// Get static files
	staticFS, err := fs.Sub(webFS, "static")
	if err != nil {
		return nil, err
	}

	return &Handler{
		deepScan:    deepScan,
		cfg:         cfg,
		webFS:       webFS,
		staticFS:    staticFS,
		funcMap:     funcMap,
		version:     version,
		disableCSRF: disableCSRF,
	}, nil
}

// Routes builds the router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Static files
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	r.Get("/healthz", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.withSession)
		r.Use(h.csrfProtect)

		r.Get("/", h.Review)

		r.Route("/deep-scan", func(r chi.Router) {
			r.Get("/", h.DeepScanPage)
			r.Get("/status", h.DeepScanStatus)
			r.Get("/export", h.ExportResults)
			r.Post("/files", h.UploadFiles)
			r.Post("/files/{index}/remove", h.RemoveFile)
			r.Post("/config", h.UpdateConfig)
			r.Post("/start", h.StartScan)
			r.Post("/cancel", h.CancelScan)
		})

		// SSE
		r.Get("/sse/deep-scan", h.DeepScanSSE)
	})

	return r
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// render executes a page template with the base layout
func (h *Handler) render(w http.ResponseWriter, pageName string, data any) {
	tmpl, err := template.New("base.html").Funcs(h.funcMap).ParseFS(h.webFS, "templates/base.html", "templates/"+pageName)
	if err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// page fills the fields shared by every page
func (h *Handler) page(w http.ResponseWriter, r *http.Request, title string) Page {
	return Page{
		Title:     title,
		Nav:       review.Navigation(r.URL.Path),
		CSRFToken: h.csrfToken(w, r),
		Version:   h.version,
		Error:     r.URL.Query().Get("error"),
		Success:   r.URL.Query().Get("success"),
	}
}

// Template functions

func formatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.Bytes(uint64(bytes))
}

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04")
	case *time.Time:
		if t == nil {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	}
	return "-"
}

func timeAgo(v any) string {
	switch t := v.(type) {
	case time.Time:
		return humanize.Time(t)
	case *time.Time:
		if t == nil {
			return "-"
		}
		return humanize.Time(*t)
	}
	return "-"
}

// percent rounds f to one decimal for display
func percent(f float64) string {
	return humanize.FtoaWithDigits(math.Round(f*10)/10, 1) + "%"
}
