// Package registry provides an in-process tools.Executor backed by
// registered Go functions.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unichat-ai/unichat/pkg/storage"
	"github.com/unichat-ai/unichat/pkg/tools"
)

var (
	toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_tool_executions_total",
			Help: "Total registered-function tool executions",
		},
		[]string{"tool_name", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unichat_tool_duration_seconds",
			Help:    "Registered-function tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool_name"},
	)
)

func init() {
	prometheus.MustRegister(toolExecutions, toolDuration)
}

// Handler is one registered tool function. Arguments arrive as the raw
// JSON-encoded string accumulated during streaming; the returned string
// becomes the tool_response payload.
type Handler func(ctx context.Context, args json.RawMessage, store storage.ConversationStore, rc tools.RunContext) (string, error)

// FunctionRegistry routes tool calls to registered handlers and
// implements tools.Executor. Calls run sequentially in call order.
type FunctionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// Ensure FunctionRegistry implements tools.Executor at compile time.
var _ tools.Executor = (*FunctionRegistry)(nil)

// New creates an empty FunctionRegistry.
func New() *FunctionRegistry {
	return &FunctionRegistry{handlers: make(map[string]Handler)}
}

// Register adds a handler under the given tool name. Registering the same
// name twice keeps the first handler and logs a warning.
func (r *FunctionRegistry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		slog.Warn("tool name conflict, keeping first handler", "tool", name)
		return
	}
	r.handlers[name] = h
}

// Invoke implements tools.Executor. A handler error or missing handler
// yields an IsError result for that call; it never fails the batch.
func (r *FunctionRegistry) Invoke(ctx context.Context, completionID string, p tools.Payload, store storage.ConversationStore, rc tools.RunContext) ([]tools.Result, error) {
	results := make([]tools.Result, 0, len(p.Calls))
	for _, call := range p.Calls {
		r.mu.RLock()
		handler, ok := r.handlers[call.Function.Name]
		r.mu.RUnlock()

		if !ok {
			toolExecutions.WithLabelValues(call.Function.Name, "missing").Inc()
			results = append(results, tools.Result{
				CallID:  call.ID,
				Name:    call.Function.Name,
				Output:  fmt.Sprintf("no handler registered for tool %q", call.Function.Name),
				IsError: true,
			})
			continue
		}

		start := time.Now()
		output, err := handler(ctx, json.RawMessage(call.Function.Arguments), store, rc)
		toolDuration.WithLabelValues(call.Function.Name).Observe(time.Since(start).Seconds())

		if err != nil {
			toolExecutions.WithLabelValues(call.Function.Name, "error").Inc()
			slog.Warn("tool handler failed",
				"completion_id", completionID,
				"tool", call.Function.Name,
				"error", err,
			)
			results = append(results, tools.Result{
				CallID:  call.ID,
				Name:    call.Function.Name,
				Output:  err.Error(),
				IsError: true,
			})
			continue
		}

		toolExecutions.WithLabelValues(call.Function.Name, "success").Inc()
		results = append(results, tools.Result{
			CallID: call.ID,
			Name:   call.Function.Name,
			Output: output,
		})
	}
	return results, nil
}
