package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SignatureHeader is the request header carrying the webhook
// signature.
const SignatureHeader = "Webhook-Signature"

// maxWebhookBody caps request bodies; provider events are small.
const maxWebhookBody = 256 << 10

// Handler is the webhook HTTP endpoint.
type Handler struct {
	processor *Processor
	secret    string
	tolerance time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewHandler creates the webhook endpoint. tolerance <= 0 uses
// DefaultTolerance.
func NewHandler(processor *Processor, secret string, tolerance time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		processor: processor,
		secret:    secret,
		tolerance: tolerance,
		log:       log,
		now:       time.Now,
	}
}

// ServeHTTP implements http.Handler.
//
// POST only. A bad or stale signature is a 400 with no detail, so the
// endpoint leaks nothing about why verification failed. Duplicates
// acknowledge with 200 like first deliveries; the provider must stop
// retrying either way.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	header := r.Header.Get(SignatureHeader)
	if err := VerifySignature(body, header, h.secret, h.tolerance, h.now()); err != nil {
		h.log.Warn("webhook signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	ev, err := ParseEvent(body)
	if err != nil {
		h.log.Warn("webhook event rejected", "error", err)
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	if err := h.processor.Process(r.Context(), ev); err != nil {
		// Processing errors are retryable; tell the provider to try
		// again rather than acknowledging an unapplied event.
		h.log.Error("webhook processing failed", "event", ev.ID, "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received": true}`))
}

// Serve runs the webhook server until ctx is cancelled, then shuts
// down gracefully.
func Serve(ctx context.Context, addr string, handler *Handler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/webhooks/payments", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("payments webhook listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
