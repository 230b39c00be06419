package events

import (
	"context"
	"time"
)

// Membership event types.
const (
	TypeMemberJoined = "member_joined"
	TypeMemberLeft   = "member_left"
)

// Event is a membership transition, published for downstream consumers
// (feeds, analytics). Delivery is best-effort: the ledger never fails a write
// because an event could not be published.
type Event struct {
	Type       string    `json:"type"`
	ClubID     string    `json:"clubId"`
	UserID     string    `json:"userId"`
	JoinedVia  string    `json:"joinedVia,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher sends membership events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop is a Publisher that discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
