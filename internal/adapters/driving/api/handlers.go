package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

type ctxKey struct{}

// withRequestID tags each request with an id, reusing the caller's X-Request-ID.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		started := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		logger.Debug("request", "request_id", id, "method", r.Method, "path", r.URL.Path,
			"duration_ms", time.Since(started).Milliseconds())
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("writing response", "error", err)
	}
}

// decode reads a JSON body into v. Malformed bodies are invalid input.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// serviceInfo answers GET /.
type serviceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, serviceInfo{
		Service: "sercha-indexer",
		Version: s.ports.Version,
		Status:  "running",
		Endpoints: map[string]string{
			"health":    "/health",
			"index":     "/api/v1/index",
			"documents": "/api/v1/documents",
			"search":    "/api/v1/search",
			"stats":     "/api/v1/search/stats",
			"reconcile": "/api/v1/reconcile",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.ports.Health.Health(r.Context())
	status := http.StatusOK
	if report.Status == domain.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req domain.IndexRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.ports.Index.IndexChunks(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ports.Index.Status(r.Context(), r.PathValue("document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ports.Index.Delete(r.Context(), r.PathValue("document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// searchFilters carries dates as strings so they can be parsed leniently.
type searchFilters struct {
	DocumentType string   `json:"document_type"`
	PatientID    string   `json:"patient_id"`
	DocumentID   string   `json:"document_id"`
	DocumentIDs  []string `json:"document_ids"`
	DateFrom     string   `json:"date_from"`
	DateTo       string   `json:"date_to"`
}

type searchRequest struct {
	Query     string        `json:"query"`
	Limit     int           `json:"limit"`
	Threshold float64       `json:"threshold"`
	Filters   searchFilters `json:"filters"`
}

func (req searchRequest) toDomain() (domain.SearchRequest, error) {
	f := domain.SearchFilters{
		DocumentType: req.Filters.DocumentType,
		PatientID:    req.Filters.PatientID,
		DocumentIDs:  req.Filters.DocumentIDs,
	}
	if req.Filters.DocumentID != "" {
		f.DocumentIDs = append(f.DocumentIDs, req.Filters.DocumentID)
	}
	for _, d := range []struct {
		raw string
		dst **time.Time
	}{
		{req.Filters.DateFrom, &f.DateFrom},
		{req.Filters.DateTo, &f.DateTo},
	} {
		if d.raw == "" {
			continue
		}
		t, err := domain.ParseDate(d.raw)
		if err != nil {
			return domain.SearchRequest{}, err
		}
		*d.dst = &t
	}
	return domain.SearchRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Filters:   f,
	}, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.ports.Search.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ports.Search.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: force must be a boolean", domain.ErrInvalidInput))
			return
		}
		force = v
	}
	report, err := s.ports.Reconciler.Reconcile(r.Context(), force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type submitRequest struct {
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	FileType   string         `json:"file_type"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

type submitResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	doc := &domain.Document{
		ID:       body.DocumentID,
		Filename: body.Filename,
		FileType: body.FileType,
		Content:  body.Content,
		Metadata: body.Metadata,
	}
	if err := s.ports.Index.SubmitDocument(r.Context(), doc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{DocumentID: doc.ID, Status: doc.Status.String()})
}
