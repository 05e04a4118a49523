// Command mock-backend runs a deterministic streaming server for local
// testing. It speaks both backend dialects: the choices dialect on
// /v1/chat/completions and the event-named dialect on /v1/messages, so
// the gateway can be exercised end to end without real API keys.
//
// Responses are derived from the last user message: text containing
// "weather" triggers a tool-call stream, "think" adds reasoning deltas,
// anything else streams the message back word by word.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChoicesDialect)
	mux.HandleFunc("POST /v1/messages", handleEventDialect)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type mockRequest struct {
	Model    string        `json:"model"`
	Messages []mockMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type mockMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// lastUserText extracts the last user message's text, tolerating both
// string content and content-part arrays.
func lastUserText(req mockRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		switch c := req.Messages[i].Content.(type) {
		case string:
			return c
		case []any:
			var sb strings.Builder
			for _, part := range c {
				if m, ok := part.(map[string]any); ok {
					if s, ok := m["text"].(string); ok {
						sb.WriteString(s)
					}
				}
			}
			return sb.String()
		}
	}
	return ""
}

// sseStream sets up the response for server-sent events and returns a
// frame emitter that flushes after every frame.
func sseStream(w http.ResponseWriter) func(event string, payload any) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	return func(event string, payload any) {
		if event != "" {
			fmt.Fprintf(w, "event: %s\n", event)
		}
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// handleChoicesDialect streams a Chat Completions response: per-choice
// delta frames terminated by data: [DONE].
func handleChoicesDialect(w http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	text := lastUserText(req)
	emit := sseStream(w)

	chunk := func(delta map[string]any, finish string) map[string]any {
		choice := map[string]any{"index": 0, "delta": delta}
		if finish != "" {
			choice["finish_reason"] = finish
		}
		return map[string]any{"id": "chatcmpl-mock", "model": req.Model, "choices": []any{choice}}
	}

	switch {
	case strings.Contains(strings.ToLower(text), "weather"):
		emit("", chunk(map[string]any{"tool_calls": []any{map[string]any{
			"index": 0, "id": "call_mock_1", "type": "function",
			"function": map[string]any{"name": "get_weather", "arguments": ""},
		}}}, ""))
		for _, frag := range []string{`{"city"`, `:"Oslo"`, `}`} {
			emit("", chunk(map[string]any{"tool_calls": []any{map[string]any{
				"index": 0, "function": map[string]any{"arguments": frag},
			}}}, ""))
		}
		emit("", chunk(map[string]any{}, "tool_calls"))
	case strings.Contains(strings.ToLower(text), "think"):
		for _, frag := range []string{"Considering ", "the question..."} {
			emit("", chunk(map[string]any{"reasoning_content": frag}, ""))
		}
		emit("", chunk(map[string]any{"content": "Thought about it."}, "stop"))
	default:
		reply := "You said: " + text
		for _, word := range strings.SplitAfter(reply, " ") {
			emit("", chunk(map[string]any{"content": word}, ""))
		}
		emit("", chunk(map[string]any{}, "stop"))
	}

	in, out := len(text)/4+1, 12
	emit("", map[string]any{
		"id": "chatcmpl-mock", "model": req.Model, "choices": []any{},
		"usage": map[string]any{
			"prompt_tokens": in, "completion_tokens": out, "total_tokens": in + out,
		},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// handleEventDialect streams a Messages-style response: named events
// with content-block framing and a message_stop sentinel.
func handleEventDialect(w http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	text := lastUserText(req)
	emit := sseStream(w)

	emit("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": "msg_mock", "model": req.Model,
			"usage": map[string]any{"input_tokens": len(text)/4 + 1},
		},
	})
	emit("ping", map[string]any{"type": "ping"})

	if strings.Contains(strings.ToLower(text), "weather") {
		emit("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{
				"type": "tool_use", "id": "toolu_mock_1", "name": "get_weather",
			},
		})
		for _, frag := range []string{`{"city":`, `"Oslo"}`} {
			emit("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": frag},
			})
		}
		emit("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	} else {
		emit("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		reply := "You said: " + text
		for _, word := range strings.SplitAfter(reply, " ") {
			emit("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": word},
			})
		}
		emit("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	}

	emit("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"output_tokens": 12},
	})
	emit("message_stop", map[string]any{"type": "message_stop"})
}
