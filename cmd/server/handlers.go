package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/ragmux"
	ragerrors "github.com/blueberrycongee/ragmux/pkg/errors"
)

type handler struct {
	client *ragmux.Client
	logger *slog.Logger
}

func newHandler(client *ragmux.Client, logger *slog.Logger) *handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &handler{client: client, logger: logger}
}

type retrieveRequest struct {
	Scope string `json:"scope"`
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Context     string `json:"context"`
	CacheStatus string `json:"cache_status"`
}

func (h *handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text, status, err := h.client.GetContext(r.Context(), req.Scope, req.Query, req.TopK)
	if err != nil {
		h.writeRetrievalError(w, err)
		return
	}

	w.Header().Set("X-Cache", string(status))
	writeJSON(w, http.StatusOK, retrieveResponse{Context: text, CacheStatus: string(status)})
}

type ingestRequest struct {
	DocumentID string         `json:"document_id"`
	Chunks     []ragmux.Chunk `json:"chunks"`
}

type ingestResponse struct {
	Inserted int `json:"inserted"`
}

func (h *handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := h.client.Ingest(r.Context(), req.DocumentID, req.Chunks)
	if err != nil {
		var be *ragerrors.IngestionBatchError
		if errors.As(err, &be) {
			// Partial progress: report what survived so the caller can resume.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":        be.Error(),
				"inserted":     be.Inserted,
				"batches_done": be.BatchesDone,
				"failed_batch": be.FailedBatch,
			})
			return
		}
		h.writeRetrievalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Inserted: n})
}

func (h *handler) RegisterScope(w http.ResponseWriter, r *http.Request) {
	var scope ragmux.Scope
	if err := json.NewDecoder(r.Body).Decode(&scope); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if scope.ID == "" {
		writeError(w, http.StatusBadRequest, "scope id is required")
		return
	}

	h.client.RegisterScope(scope)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ListScopes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.client.Scopes())
}

type prefetchRequest struct {
	Scopes []string `json:"scopes"`
}

type prefetchResponse struct {
	Accepted int `json:"accepted"`
}

func (h *handler) Prefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accepted := h.client.Prefetch(req.Scopes...)
	writeJSON(w, http.StatusAccepted, prefetchResponse{Accepted: accepted})
}

func (h *handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.client.Stats())
}

func (h *handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) writeRetrievalError(w http.ResponseWriter, err error) {
	var re *ragerrors.RetrievalError
	if errors.As(err, &re) {
		switch {
		case re.Type == ragerrors.TypeInvalidArgument:
			writeError(w, http.StatusBadRequest, re.Message)
			return
		case re.Fatal, re.Type == ragerrors.TypeStoreUnavailable:
			writeError(w, http.StatusServiceUnavailable, re.Error())
			return
		}
	}
	h.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
