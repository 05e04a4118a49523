// Package memory defines the long-term-memory extraction collaborator.
// The post-processing stage hands it the latest user text and recent
// history; extracted events are appended to the completion's tool-call
// list as synthetic function calls. The storage of captured memories is
// external; HeuristicExtractor is a reference implementation.
package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/unichat-ai/unichat/pkg/storage"
)

// Settings controls memory capture for one completion.
type Settings struct {
	// Enabled gates capture per user; ineligible users contribute nothing.
	Enabled bool

	// MaxEvents bounds how many events a single completion may produce
	// (0 = no bound).
	MaxEvents int
}

// Event is one captured memory.
type Event struct {
	// Type is the synthetic function name, e.g. "store_memory".
	Type string `json:"type"`

	// Text is the captured memory content.
	Text string `json:"text"`
}

// Extractor mines durable facts from a conversation turn.
//
// A failing extractor contributes nothing; it never blocks the completion.
type Extractor interface {
	Extract(ctx context.Context, latest string, history []storage.StoredMessage, store storage.ConversationStore, completionID string, settings Settings) ([]Event, error)
}

// rememberPattern matches explicit memory requests in user text.
var rememberPattern = regexp.MustCompile(`(?i)\bremember (?:that )?(.+)`)

// HeuristicExtractor captures explicit "remember ..." statements from the
// latest user message.
type HeuristicExtractor struct{}

var _ Extractor = HeuristicExtractor{}

// Extract implements Extractor.
func (HeuristicExtractor) Extract(ctx context.Context, latest string, history []storage.StoredMessage, store storage.ConversationStore, completionID string, settings Settings) ([]Event, error) {
	if !settings.Enabled {
		return nil, nil
	}

	var events []Event
	for _, line := range strings.Split(latest, "\n") {
		m := rememberPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		events = append(events, Event{
			Type: "store_memory",
			Text: strings.TrimSpace(m[1]),
		})
		if settings.MaxEvents > 0 && len(events) >= settings.MaxEvents {
			break
		}
	}
	return events, nil
}
