package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"carescribe/internal/config"
	"carescribe/internal/domain"
	"carescribe/internal/metrics"
	"carescribe/internal/whatsapp"
)

// Server mounts the webhook endpoints and drives the pipeline for each
// delivery.
type Server struct {
	cfg      config.Config
	pipeline *Pipeline
	store    domain.RecordStore
	registry *metrics.Registry
	inflight *metrics.Gauge
	logger   *slog.Logger
	mux      *http.ServeMux
	server   *http.Server
}

type ServerConfig struct {
	Config   config.Config
	Pipeline *Pipeline
	Store    domain.RecordStore
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		cfg:      cfg.Config,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		registry: cfg.Metrics,
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
	}
	if s.registry != nil {
		s.inflight = s.registry.Gauge("carescribe_inflight_requests", "Webhook requests currently being processed.")
	}

	path := cfg.Config.WhatsApp.WebhookPath
	s.mux.HandleFunc("GET "+path, s.handleVerification)
	s.mux.HandleFunc("POST "+path, s.handleIncoming)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /test", s.handleTest)
	s.mux.HandleFunc("POST /test-webhook", s.handleTestWebhook)

	if cfg.Config.Metrics.Enabled && s.registry != nil {
		s.mux.Handle("GET "+cfg.Config.Metrics.Endpoint, s.registry.Handler())
	}

	return s
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", addr, "path", s.cfg.WhatsApp.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleVerification answers the platform's subscribe challenge. Parameters
// normally arrive as query values; some proxies strip them, so headers are
// the fallback.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" && token == "" {
		mode = r.Header.Get("hub-mode")
		token = r.Header.Get("hub-verify-token")
		challenge = r.Header.Get("hub-challenge")
	}

	if mode == "" || token == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != s.cfg.WhatsApp.VerifyToken {
		s.logger.Warn("webhook verification failed", "mode", mode)
		http.Error(w, "Invalid verify token", http.StatusForbidden)
		return
	}
	if challenge == "" {
		http.Error(w, "Challenge parameter missing", http.StatusBadRequest)
		return
	}

	// The platform expects the challenge echoed back as an integer.
	n, err := strconv.Atoi(challenge)
	if err != nil {
		http.Error(w, "Invalid challenge", http.StatusBadRequest)
		return
	}

	s.logger.Info("webhook verified")
	fmt.Fprint(w, n)
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	if s.inflight != nil {
		s.inflight.Inc()
		defer s.inflight.Dec()
	}

	reqID := uuid.New().String()
	log := s.logger.With("req_id", reqID)

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "failed to read body"})
		return
	}
	defer r.Body.Close()

	// Signature check is optional: enabled by configuring the app secret.
	if secret := s.cfg.WhatsApp.AppSecret; secret != "" {
		if !verifySignature(body, secret, r.Header.Get("X-Hub-Signature-256")) {
			log.Warn("invalid webhook signature")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload whatsapp.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Malformed payloads degrade to a neutral acknowledgment; the
		// platform must never see a hard failure for a bad delivery.
		log.Warn("malformed webhook payload", "err", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "no message"})
		return
	}

	event := s.pipeline.Classify(payload)
	log.Info("webhook event classified", "kind", string(event.Kind), "type", event.Type)

	result, err := s.pipeline.Process(r.Context(), event)
	s.record(r.Context(), reqID, event, result, err)

	if err != nil {
		// Dispatch failure: the user could not be notified. Surface a
		// generic error to the HTTP caller, nothing more.
		log.Error("failed to dispatch reply", "err", err)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "error",
			"message": "Failed to process webhook",
		})
		return
	}

	resp := map[string]string{"status": result.Status}
	if result.Message != "" && result.Status != "success" {
		resp["message"] = result.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

// record archives the pipeline outcome. Best effort: a store fault is
// logged and forgotten.
func (s *Server) record(ctx context.Context, reqID string, event domain.InboundEvent, result Result, dispatchErr error) {
	if s.store == nil {
		return
	}

	rec := domain.ProcessingRecord{
		ID:            reqID,
		From:          event.From,
		Kind:          string(event.Kind),
		Status:        result.Status,
		Detail:        result.Message,
		TranscriptLen: result.TranscriptLen,
		Report:        result.Report,
		CreatedAt:     time.Now(),
	}
	if event.Media != nil {
		rec.MediaID = event.Media.ID
		rec.MimeType = event.Media.MimeType
		rec.FileType = event.Media.FileType()
	}
	if dispatchErr != nil {
		rec.Status = "error"
		rec.Detail = dispatchErr.Error()
	}

	if err := s.store.SaveRecord(ctx, rec); err != nil {
		s.logger.Warn("failed to archive processing record", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Server is running and accessible",
	})
}

// handleTestWebhook echoes a delivery back without processing it, for
// verifying connectivity during setup.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "invalid JSON body"})
		return
	}
	var pretty bytes.Buffer
	_ = json.Indent(&pretty, body, "", "  ")
	s.logger.Info("test webhook received", "body", pretty.String())
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Test webhook received"})
}

func verifySignature(body []byte, secret, signature string) bool {
	if len(signature) < 8 || signature[:7] != "sha256=" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
