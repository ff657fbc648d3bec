package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"meetingrelay/internal/domain"
	"meetingrelay/internal/pipeline"
	"meetingrelay/internal/store"
)

// maxBodyBytes caps inbound webhook bodies.
const maxBodyBytes = 10 << 20

type Processor interface {
	Process(ctx context.Context, body json.RawMessage) (domain.Summary, error)
}

type Server struct {
	r        *chi.Mux
	repo     store.Repository
	pipeline Processor
}

func NewServer(repo store.Repository, p Processor, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, repo: repo, pipeline: p}

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.With(recoverJSON).Post("/webhook", s.webhook)

	r.Get("/api/payloads", s.listPayloads)
	r.Get("/api/payloads/{id}", s.getPayload)
	r.Get("/api/payloads/{id}/tasks", s.listPayloadTasks)
	r.Get("/api/sent-tasks", s.listSentTasks)

	return r
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Webhook receiver is running"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type webhookResp struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	domain.Summary
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := readPayload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.pipeline.Process(r.Context(), body)
	switch {
	case errors.Is(err, pipeline.ErrEmptyPayload):
		writeError(w, http.StatusBadRequest, "No payload received")
		return
	case err != nil:
		log.Error().Err(err).Msg("error processing webhook")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := webhookResp{Status: "success", Summary: summary}
	if summary.TasksProcessed == 0 {
		resp.Message = "No tasks found in payload"
	}
	writeJSON(w, http.StatusOK, resp)
}

// readPayload returns the request body as JSON. Requests that are not JSON are
// read as forms and converted to an object of first values.
func readPayload(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isJSON(r.Header.Get("Content-Type")) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil, nil
		}
		if !json.Valid(data) {
			return nil, errors.New("invalid JSON body")
		}
		return data, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	data, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func (s *Server) listPayloads(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payloads, err := s.repo.ListPayloads(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payloads": payloads, "limit": page.Limit, "offset": page.Offset})
}

func (s *Server) getPayload(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetPayload(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listPayloadTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.repo.GetPayload(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeSentTasks(w, r, id)
}

func (s *Server) listSentTasks(w http.ResponseWriter, r *http.Request) {
	s.writeSentTasks(w, r, r.URL.Query().Get("payload_id"))
}

func (s *Server) writeSentTasks(w http.ResponseWriter, r *http.Request, payloadID string) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.repo.ListSentTasks(r.Context(), store.SentTaskFilter{PayloadID: payloadID, Page: page})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent_tasks": recs, "limit": page.Limit, "offset": page.Offset})
}

func parsePage(r *http.Request) (store.Page, error) {
	q := r.URL.Query()
	page := store.Page{Limit: store.DefaultLimit}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return store.Page{}, fmt.Errorf("invalid limit %q", v)
		}
		page.Limit = min(n, store.MaxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return store.Page{}, fmt.Errorf("invalid offset %q", v)
		}
		page.Offset = n
	}
	return page, nil
}

// recoverJSON turns a panic into a JSON 500 so webhook callers always get a body.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().Interface("panic", rec).Str("request_id", middleware.GetReqID(r.Context())).Msg("webhook panic")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
