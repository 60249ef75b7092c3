// Package events pushes non-PII scoring events onto a capped shared queue
// for downstream consumers (dashboards, offline analysis). Entirely
// optional: without a store the queue is a no-op.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/decisionlab/risk-engine/internal/store"
)

const (
	queueKey = "risk_engine:events"
	maxQueue = 2000
)

// Event is one scoring or explanation event. Feature values never appear
// here.
type Event struct {
	Event        string  `json:"event"`
	RequestID    string  `json:"request_id"`
	LatencyMS    int64   `json:"latency_ms"`
	Probability  float64 `json:"risk_probability,omitempty"`
	Label        string  `json:"risk_label,omitempty"`
	Decision     string  `json:"decision,omitempty"`
	Count        int     `json:"count,omitempty"`
	ModelVersion string  `json:"model_version"`
	Timestamp    int64   `json:"ts"`
}

// Queue emits events to the shared store, failing open.
type Queue struct {
	client *store.Client
}

func NewQueue(client *store.Client) *Queue {
	return &Queue{client: client}
}

// Emit pushes one event; store failures are logged at debug and dropped.
func (q *Queue) Emit(ctx context.Context, ev Event) {
	if !q.client.Enabled() {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := q.client.PushEvent(ctx, queueKey, raw, maxQueue); err != nil {
		slog.Debug("event emit skipped", "event", ev.Event, "error", err)
	}
}
