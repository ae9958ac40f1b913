package handlers

import (
	"net/http"

	"github.com/lyallcooper/legalreview/internal/review"
)

// Review handles GET /
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	outline := review.Outline()

	data := ReviewData{
		Page:     h.page(w, r, "Contract Review"),
		Outline:  review.SearchOutline(outline, query),
		Counts:   review.CountOutline(outline),
		Query:    query,
		Document: review.SampleDocument(),
		Context:  review.SampleContext(),
		Footer:   review.SampleFooter(),
	}

	h.render(w, "review.html", data)
}
