package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JustUsingaWebsite/eduops/backend/internal/analysis"
	"github.com/JustUsingaWebsite/eduops/backend/internal/csvio"
	"github.com/JustUsingaWebsite/eduops/backend/internal/csvops"
	"github.com/JustUsingaWebsite/eduops/backend/internal/integrate"
	"github.com/JustUsingaWebsite/eduops/backend/internal/llm"
	"github.com/JustUsingaWebsite/eduops/backend/internal/output"
	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

const (
	maxBodyBytes        = 1 << 20
	defaultSummaryLimit = 50
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply of POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// SummaryRequest is the body of POST /api/summary.
type SummaryRequest struct {
	Request string `json:"request"`
	Limit   int    `json:"limit"`
}

// SummaryResponse carries the parsed summary and the raw model text.
type SummaryResponse struct {
	Summary llm.Summary `json:"summary"`
	Raw     string      `json:"raw"`
	Rows    int         `json:"rows"`
}

// TableResponse wraps a table with the row count before limiting.
type TableResponse struct {
	types.TableData
	Total int `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
	Raw   string `json:"raw,omitempty"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetIntegrated serves the merged table, optionally sorted and limited.
func (h *Handler) GetIntegrated(w http.ResponseWriter, r *http.Request) {
	tbl, ok := h.readIntegrated(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	if key := q.Get("sort"); key != "" {
		sorted, err := csvops.Sort(tbl, csvops.AdvancedSortOptions{
			Mode:       csvops.SortMode(q.Get("mode")),
			Order:      csvops.SortOrder(strings.ToLower(q.Get("order"))),
			Key:        key,
			TrimSpaces: true,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tbl = sorted
	}

	total := len(tbl.Rows)
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(tbl.Rows) {
			tbl.Rows = tbl.Rows[:limit]
		}
	}
	writeJSON(w, http.StatusOK, TableResponse{TableData: tbl, Total: total})
}

// GetSchool returns the rows of every source dataset holding the code.
func (h *Handler) GetSchool(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	res, err := integrate.New(h.opts.Sources, h.log).Lookup(code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, integrate.ErrMissingInput) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	if res.Summary.Matched == 0 {
		writeError(w, http.StatusNotFound, "school "+code+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":    code,
		"summary": res.Summary,
		"results": res.PerList,
	})
}

// GetRegions returns the regional computer counts for ?year=.
func (h *Handler) GetRegions(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("year")
	if year == "" {
		year = h.opts.Year
	}
	stats, err := analysis.Load(h.opts.Tech)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	counts, err := stats.RegionalDistribution(year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "regions": counts})
}

// Chat forwards a message to the model.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}
	if h.gen == nil {
		writeError(w, http.StatusServiceUnavailable, llm.ErrAPIKeyRequired.Error())
		return
	}
	text, err := h.gen.Generate(r.Context(), req.Message)
	if err != nil {
		h.log.Error().Err(err).Msg("chat generation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: text})
}

// Summary asks the model for a two-section summary of the merged table.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "No summary request provided")
		return
	}
	if h.gen == nil {
		writeError(w, http.StatusServiceUnavailable, llm.ErrAPIKeyRequired.Error())
		return
	}
	tbl, ok := h.readIntegrated(w)
	if !ok {
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	if limit < len(tbl.Rows) {
		tbl.Rows = tbl.Rows[:limit]
	}

	var data bytes.Buffer
	if err := output.NewFormatter(output.FormatCSV).Format(&data, tbl); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, raw, err := llm.Summarize(r.Context(), h.gen, strings.TrimRight(data.String(), "\n"), req.Request)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, llm.ErrMalformedSummary) {
			status = http.StatusBadGateway
		}
		h.log.Error().Err(err).Msg("summary failed")
		writeJSON(w, status, errorResponse{Error: err.Error(), Raw: raw})
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: summary, Raw: raw, Rows: len(tbl.Rows)})
}

func (h *Handler) readIntegrated(w http.ResponseWriter) (types.TableData, bool) {
	tbl, err := csvio.ReadFile(h.opts.Integrated)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "integrated data not found; run the integrate command first")
			return tbl, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return tbl, false
	}
	return tbl, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
