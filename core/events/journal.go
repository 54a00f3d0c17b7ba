package events

import (
	"strings"
	"sync"

	"bookingledger/core/types"
)

// Entry is one recorded event with its position in the journal.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// payloadCarrier is implemented by emitted events that wrap a typed payload.
type payloadCarrier interface {
	Event() *types.Event
}

// Journal is an in-memory Emitter that retains emitted events for later
// inspection, e.g. by the RPC event listing endpoint. Entries beyond the
// configured capacity are dropped oldest-first.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	nextSeq uint64
	limit   int
}

// NewJournal creates a journal retaining up to limit entries. A non-positive
// limit keeps everything.
func NewJournal(limit int) *Journal {
	return &Journal{nextSeq: 1, limit: limit}
}

// Emit implements the Emitter interface.
func (j *Journal) Emit(evt Event) {
	if j == nil || evt == nil {
		return
	}
	entry := Entry{Type: evt.EventType(), Attributes: map[string]string{}}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			for k, v := range payload.Attributes {
				entry.Attributes[k] = v
			}
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.Sequence = j.nextSeq
	j.nextSeq++
	j.entries = append(j.entries, entry)
	if j.limit > 0 && len(j.entries) > j.limit {
		j.entries = j.entries[len(j.entries)-j.limit:]
	}
}

// List returns up to limit retained entries whose type carries the prefix,
// oldest first. An empty prefix matches everything; a non-positive limit
// returns all matches.
func (j *Journal) List(prefix string, limit int) []Entry {
	if j == nil {
		return nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, 0, len(j.entries))
	for _, entry := range j.entries {
		if prefix != "" && !strings.HasPrefix(entry.Type, prefix) {
			continue
		}
		out = append(out, entry)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
