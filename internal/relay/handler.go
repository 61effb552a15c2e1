package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/comigor/prompt-optimizer/internal/config"
	"github.com/comigor/prompt-optimizer/internal/logger"
)

// Error texts returned to callers. Upstream causes are logged, not echoed.
const (
	msgInvalidRequest   = "Invalid request"
	msgOptimizeFailed   = "Failed to optimize prompt"
	msgMethodNotAllowed = "method not allowed"
)

// Handler serves the relay endpoint.
type Handler struct {
	optimizer *Optimizer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHandler builds a Handler. cfg is copied; later changes have no effect.
func NewHandler(optimizer *Optimizer, cfg config.RelayConfig) *Handler {
	return &Handler{
		optimizer: optimizer,
		timeout:   cfg.RequestTimeout,
		logger:    logger.Module("relay"),
	}
}

// Routes returns the HTTP router:
//
//	POST /api/optimize  stream an optimized prompt
//	GET  /healthz       liveness probe
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestLogging(h.logger), withRecovery(h.logger), withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/optimize", h.handleOptimize)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})
	return r
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With("request_id", middleware.GetReqID(r.Context()))

	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("malformed request body", "error", err)
		writeError(w, http.StatusInternalServerError, msgInvalidRequest)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	stream, err := h.optimizer.Optimize(ctx, req.Messages)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			log.Warn("rejected request", "error", err)
			writeError(w, http.StatusInternalServerError, msgInvalidRequest)
			return
		}
		log.Error("upstream call failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgOptimizeFailed)
		return
	}
	defer stream.Close()

	log.Info("streaming started", "messages", len(req.Messages))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var fragments, written int
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Info("streaming complete", "fragments", fragments, "bytes", written)
			return
		}
		if err != nil {
			// Headers are gone; all we can do is end the body early.
			if ctx.Err() != nil {
				log.Info("streaming cancelled", "fragments", fragments, "bytes", written, "cause", context.Cause(ctx))
			} else {
				log.Warn("upstream failed mid-stream, truncating", "fragments", fragments, "bytes", written, "error", err)
			}
			return
		}
		fragments++

		n, err := io.WriteString(w, fragment)
		written += n
		if err != nil {
			log.Info("client went away", "fragments", fragments, "bytes", written, "error", err)
			return
		}
		if n > 0 && flusher != nil {
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, chat.ErrorResponse{Error: msg})
}
