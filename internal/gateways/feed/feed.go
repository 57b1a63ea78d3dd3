// Package feed carries change events over Postgres LISTEN/NOTIFY.
//
// Writers publish inside their own transaction, so an event is only
// delivered once the change it describes has committed. Every event goes
// out on a single channel and carries its topic in the payload; listeners
// filter by topic.
package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const Channel = "swapcard_events"

const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

type Event struct {
	Topic string    `json:"topic"`
	Kind  string    `json:"kind"`
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
}

func ListingsTopic() string { return "listings" }
func NotificationsTopic(uid string) string { return "notifications:" + uid }
func SwapRequestsTopic(uid string) string { return "swap_requests:" + uid }
func MessagesTopic(cid string) string { return "messages:" + cid }

// Execer is satisfied by *bun.DB and bun.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func Publish(ctx context.Context, db Execer, topic, kind, id string) error {
	payload, err := json.Marshal(Event{Topic: topic, Kind: kind, ID: id, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := db.ExecContext(ctx, "SELECT pg_notify(?, ?)", Channel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}
	return nil
}

func Decode(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Topic == "" {
		return Event{}, fmt.Errorf("event without topic: %q", payload)
	}
	return ev, nil
}

// Matches reports whether an event on topic belongs to subscription sub.
// "*" receives everything.
func Matches(sub, topic string) bool {
	return sub == "*" || sub == topic
}
