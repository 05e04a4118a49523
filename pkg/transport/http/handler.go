// Package http serves the unified chat-completion API and bridges it to
// the model backends: it normalizes the inbound request for the target
// backend, performs the outbound streaming call, and runs the response
// pipeline that converts the backend stream into canonical events.
package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/backend"
	"github.com/unichat-ai/unichat/pkg/debug"
	"github.com/unichat-ai/unichat/pkg/memory"
	"github.com/unichat-ai/unichat/pkg/models"
	"github.com/unichat-ai/unichat/pkg/moderation"
	"github.com/unichat-ai/unichat/pkg/objectstore"
	"github.com/unichat-ai/unichat/pkg/observability"
	"github.com/unichat-ai/unichat/pkg/storage"
	"github.com/unichat-ai/unichat/pkg/stream"
	"github.com/unichat-ai/unichat/pkg/tokens"
	"github.com/unichat-ai/unichat/pkg/tools"
	"github.com/unichat-ai/unichat/pkg/usage"
)

// BackendTarget holds the connection settings for one backend.
type BackendTarget struct {
	URL    string
	APIKey string
}

// HandlerConfig wires the handler's collaborators. Registry and Backends
// are required; the rest may be nil to disable the matching concern.
type HandlerConfig struct {
	Registry models.Registry
	Backends map[backend.ID]BackendTarget

	Store     storage.ConversationStore
	Validator moderation.Validator
	Extractor memory.Extractor
	Memory    memory.Settings
	Executor  tools.Executor
	Limiter   usage.Limiter
	Estimator *tokens.Estimator
	Objects   objectstore.ObjectStore

	// EnabledTools is the tool allow-list forwarded to the normalizer.
	EnabledTools []string

	// Client performs the outbound backend calls; http.DefaultClient
	// when nil. Streaming calls must not carry a client-side timeout.
	Client *http.Client

	MaxBodySize int64
	Logger      *slog.Logger
}

// Handler serves the chat-completion endpoint.
type Handler struct {
	cfg    HandlerConfig
	client *http.Client
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the handler and its routes.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 10 << 20 // 10 MB
	}

	h := &Handler{
		cfg:    cfg,
		client: cfg.Client,
		logger: cfg.Logger,
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletion)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})
	return h
}

// Routes returns the handler wrapped in the standard middleware chain.
func (h *Handler) Routes() http.Handler {
	var handler http.Handler = h.mux
	handler = observability.MetricsMiddleware(handler)
	handler = Logging(h.logger)(handler)
	handler = Recovery(h.logger)(handler)
	handler = RequestID(handler)
	return handler
}

// chatRequest is the inbound request envelope: the canonical request
// plus the routing fields that are not part of the canonical model.
type chatRequest struct {
	api.ChatRequest
	Backend        string `json:"backend"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (h *Handler) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
		writeError(w, api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, api.NewInvalidRequestError("body",
				fmt.Sprintf("request body too large (max %d bytes)", h.cfg.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest)
		return
	}

	if req.Model == "" {
		writeAPIError(w, api.NewInvalidRequestError("model", "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		writeAPIError(w, api.NewInvalidRequestError("messages", "messages must not be empty"))
		return
	}

	backendID := backend.ID(req.Backend)
	target, ok := h.cfg.Backends[backendID]
	if !ok {
		writeAPIError(w, api.NewInvalidRequestError("backend",
			fmt.Sprintf("backend %q is not configured", req.Backend)))
		return
	}

	caps, ok := h.cfg.Registry.Lookup(req.Model)
	if !ok {
		writeAPIError(w, api.NewNotFoundError("model "+req.Model+" not found"))
		return
	}
	if apiErr := models.ValidateRequest(caps, &req.ChatRequest); apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	w.Header().Set("X-Model", req.Model)

	normalizer, err := backend.ForID(backendID)
	if err != nil {
		writeAPIError(w, api.NewInvalidRequestError("backend", err.Error()))
		return
	}

	opts := backend.Options{
		EnabledTools: h.cfg.EnabledTools,
		Objects:      h.cfg.Objects,
	}

	// Image and speech models on a prompt-contract backend take a
	// separate, non-streaming path.
	if ir, ok := normalizer.(backend.ImageRequester); ok && caps.Type != models.ModelTypeText {
		h.handleImageRequest(w, r, ir, &req, caps, opts, target)
		return
	}

	body, err := normalizer.Normalize(&req.ChatRequest, caps, opts)
	if err != nil {
		writeAPIError(w, api.NewInvalidRequestError("", err.Error()))
		return
	}

	resp, elapsed, err := h.callBackend(r.Context(), backendID, target, body)
	if err != nil {
		h.logger.Error("backend call failed", "backend", backendID, "model", req.Model, "error", err)
		observability.BackendRequestsTotal.WithLabelValues(string(backendID), req.Model, "error").Inc()
		writeAPIError(w, api.NewBackendError("backend request failed"))
		return
	}
	defer resp.Body.Close()

	observability.BackendLatency.WithLabelValues(string(backendID), req.Model).Observe(elapsed.Seconds())
	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		h.logger.Error("backend returned error status",
			"backend", backendID, "model", req.Model,
			"status", resp.StatusCode, "body", string(slurp))
		observability.BackendRequestsTotal.WithLabelValues(string(backendID), req.Model, strconv.Itoa(resp.StatusCode)).Inc()
		writeAPIError(w, api.NewBackendError(
			fmt.Sprintf("backend returned status %d", resp.StatusCode)))
		return
	}
	observability.BackendRequestsTotal.WithLabelValues(string(backendID), req.Model, "200").Inc()

	h.streamResponse(w, r, backendID, &req, resp.Body)
}

// callBackend posts the normalized body to the backend's streaming
// endpoint with the backend's auth convention.
func (h *Handler) callBackend(ctx context.Context, id backend.ID, target BackendTarget, body map[string]any) (*http.Response, time.Duration, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding backend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	debug.Log("backends", "outbound request", "backend", id, "url", target.URL, "bytes", len(payload))
	debug.Raw("backends", string(payload))

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if target.APIKey != "" {
		switch id {
		case backend.Anthropic:
			req.Header.Set("x-api-key", target.APIKey)
			req.Header.Set("anthropic-version", "2023-06-01")
		default:
			req.Header.Set("Authorization", "Bearer "+target.APIKey)
		}
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	return resp, time.Since(start), err
}

// streamResponse assembles the per-completion pipeline and copies the
// backend stream through it to the client.
func (h *Handler) streamResponse(w http.ResponseWriter, r *http.Request, id backend.ID, req *chatRequest, upstream io.Reader) {
	completionID := api.NewCompletionID()
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = completionID
	}

	sc := stream.NewContext(completionID)
	sc.LogID = RequestIDFromContext(r.Context())

	formatter := stream.NewFormatter(h.logger, func(dropped int) {
		observability.FrameBufferEvictedBytes.Add(float64(dropped))
	})

	pipeline := stream.NewPipeline(h.logger).
		Add(stream.NewInitStage(h.logger, h.cfg.Limiter, req.User)).
		Add(stream.NewErrorTransformer(h.logger, formatter, func(stage string) {
			observability.PipelineStageFailures.WithLabelValues(stage).Inc()
		})).
		Add(stream.NewPostProcessing(h.logger, stream.PostProcessingConfig{
			ConversationID: conversationID,
			UserID:         req.User,
			Mode:           string(id),
			Store:          h.cfg.Store,
			Validator:      h.cfg.Validator,
			Extractor:      h.cfg.Extractor,
			Memory:         h.cfg.Memory,
			Executor:       h.cfg.Executor,
			Estimator:      h.cfg.Estimator,
			OnVerdict: func(m api.ModerationResult) {
				verdict := "passed"
				if !m.IsValid {
					verdict = "blocked"
				}
				observability.ModerationVerdictsTotal.WithLabelValues(verdict).Inc()
			},
		})).
		Add(stream.NewClosingStage())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := pipeline.Run(r.Context(), sc, upstream, newFlushWriter(w)); err != nil {
		// Partial output may already be in flight; nothing more can be
		// written on this connection.
		h.logger.Error("pipeline aborted", "completion_id", completionID, "error", err)
		return
	}

	if rec, ok := h.cfg.Limiter.(interface{ Record(userID string) }); ok && req.User != "" {
		rec.Record(req.User)
	}

	if sc.Usage != nil {
		observability.BackendTokensTotal.WithLabelValues(string(id), req.Model, "input").
			Add(float64(sc.Usage.InputTokens))
		observability.BackendTokensTotal.WithLabelValues(string(id), req.Model, "output").
			Add(float64(sc.Usage.OutputTokens))
	}
}

// handleImageRequest serves the prompt-contract branch: the request is
// reduced to {prompt, image} and the backend's binary response returned
// as a JSON envelope.
func (h *Handler) handleImageRequest(w http.ResponseWriter, r *http.Request, ir backend.ImageRequester, req *chatRequest, caps models.Capabilities, opts backend.Options, target BackendTarget) {
	prompt, err := ir.ImageRequest(r.Context(), &req.ChatRequest, caps, opts)
	if err != nil {
		writeAPIError(w, api.NewInvalidRequestError("messages", err.Error()))
		return
	}
	if prompt == nil {
		writeAPIError(w, api.NewInvalidRequestError("messages",
			"message shape does not match the image prompt convention"))
		return
	}

	payload, err := json.Marshal(prompt)
	if err != nil {
		writeAPIError(w, api.NewServerError("encoding image request failed"))
		return
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.URL, bytes.NewReader(payload))
	if err != nil {
		writeAPIError(w, api.NewServerError(err.Error()))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if target.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+target.APIKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		writeAPIError(w, api.NewBackendError("backend request failed"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeAPIError(w, api.NewBackendError(
			fmt.Sprintf("backend returned status %d", resp.StatusCode)))
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		writeAPIError(w, api.NewBackendError("reading backend response failed"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"model": req.Model,
		"data":  base64.StdEncoding.EncodeToString(data),
	})
}
