package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is a unit of background work, such as one webhook delivery.
type Task struct {
	Kind           string
	TenantID       string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	// Attempt is 1 for the first delivery of a task to a handler.
	Attempt int
	Delay   time.Duration
}

// envelope is the JSON form stored in Redis and in dead letters.
type envelope struct {
	Kind        string `json:"kind"`
	TenantID    string `json:"tenant_id,omitempty"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
	LastError   string `json:"last_error,omitempty"`
}

func (e envelope) task() Task {
	return Task{
		Kind:           e.Kind,
		TenantID:       e.TenantID,
		Payload:        e.Payload,
		IdempotencyKey: e.Key,
		MaxAttempts:    e.MaxAttempts,
		Attempt:        e.Attempt,
	}
}

func (e envelope) encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("queue: encode task: %w", err)
	}
	return string(raw), nil
}

func decodeEnvelope(raw string) (envelope, error) {
	var e envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return envelope{}, fmt.Errorf("queue: decode task: %w", err)
	}
	return e, nil
}

// keyspace names the Redis keys used for one prefix.
type keyspace string

func (k keyspace) join(parts ...string) string {
	out := string(k)
	if out == "" {
		out = "queue"
	}
	for _, p := range parts {
		out += ":" + p
	}
	return out
}

func (k keyspace) ready(kind string) string      { return k.join("queue", kind) }
func (k keyspace) processing(kind string) string { return k.join(kind, "processing") }
func (k keyspace) dedup(kind, key string) string { return k.join("dedup", kind, key) }

// validKind accepts lowercase letters, digits, '-', '_' and ':'.
func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == ':':
		default:
			return false
		}
	}
	return true
}
