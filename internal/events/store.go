// Package events keeps an append-only journal of session activity in
// events.jsonl. The journal is an audit trail only; nothing reads it back to
// decide what a later session does.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treykane/alias-tunnel/internal/appconfig"
	"github.com/treykane/alias-tunnel/internal/model"
)

const (
	SessionStarted    = "session_started"
	StateChanged      = "state_changed"
	AliasAdded        = "alias_added"
	AliasAddFailed    = "alias_add_failed"
	AliasRemoved      = "alias_removed"
	AliasRemoveFailed = "alias_remove_failed"
	TunnelStarted     = "tunnel_started"
	TunnelExited      = "tunnel_exited"
)

// Event is one session lifecycle record persisted to events.jsonl.
type Event struct {
	Timestamp time.Time          `json:"timestamp"`
	SessionID string             `json:"session_id,omitempty"`
	JumpHost  string             `json:"jump_host,omitempty"`
	EventType string             `json:"event_type"`
	State     model.SessionState `json:"state,omitempty"`
	IP        string             `json:"ip,omitempty"`
	ExitCode  *int               `json:"exit_code,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	SessionID string
	IP        string
	EventType string
	Since     time.Time
	Limit     int
}

// Store provides append/read access to the local event journal.
type Store struct {
	path string
}

// NewStore returns a store backed by events.jsonl in the app config dir.
func NewStore() (*Store, error) {
	path, err := appconfig.EventsFilePath()
	if err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Read returns events in append order, filtered by query, with optional limit
// keeping the most recent matches.
func (s *Store) Read(q Query) ([]Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if !matches(evt, q) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func matches(evt Event, q Query) bool {
	if strings.TrimSpace(q.SessionID) != "" && evt.SessionID != q.SessionID {
		return false
	}
	if strings.TrimSpace(q.IP) != "" && evt.IP != q.IP {
		return false
	}
	if strings.TrimSpace(q.EventType) != "" && evt.EventType != q.EventType {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}
