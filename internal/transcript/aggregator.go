// Package transcript assembles streamed transcription fragments into turns.
package transcript

import (
	"strings"
	"sync"
)

// Speaker identifies which side of the conversation produced text.
type Speaker int

const (
	User Speaker = iota
	Model
)

func (s Speaker) String() string {
	switch s {
	case User:
		return "user"
	case Model:
		return "model"
	default:
		return "unknown"
	}
}

// Entry is one committed transcript line.
type Entry struct {
	Speaker Speaker `json:"-"`
	Label   string  `json:"speaker"`
	Text    string  `json:"text"`
}

// Labels are the display names attached to committed entries.
type Labels struct {
	User  string
	Model string
}

// Aggregator accumulates partial text for both speakers until the turn is
// committed.
type Aggregator struct {
	labels Labels

	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
}

func NewAggregator(labels Labels) *Aggregator {
	if labels.User == "" {
		labels.User = "You"
	}
	if labels.Model == "" {
		labels.Model = "Model"
	}
	return &Aggregator{labels: labels}
}

// AppendPartial adds a fragment verbatim and returns the speaker's running
// partial.
func (a *Aggregator) AppendPartial(speaker Speaker, text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.builder(speaker)
	b.WriteString(text)
	return b.String()
}

// Partial returns the speaker's uncommitted text.
func (a *Aggregator) Partial(speaker Speaker) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.builder(speaker).String()
}

// CommitTurn closes the turn: it returns the user entry, then the model
// entry, skipping either when its trimmed text is empty, and clears both
// buffers.
func (a *Aggregator) CommitTurn() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []Entry
	if text := strings.TrimSpace(a.user.String()); text != "" {
		entries = append(entries, Entry{Speaker: User, Label: a.labels.User, Text: text})
	}
	if text := strings.TrimSpace(a.model.String()); text != "" {
		entries = append(entries, Entry{Speaker: Model, Label: a.labels.Model, Text: text})
	}
	a.user.Reset()
	a.model.Reset()
	return entries
}

// Reset discards both partials.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
}

func (a *Aggregator) builder(speaker Speaker) *strings.Builder {
	if speaker == Model {
		return &a.model
	}
	return &a.user
}
