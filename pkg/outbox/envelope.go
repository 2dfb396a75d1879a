package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who caused the ledger change.
type ActorRef struct {
	UserID  uuid.UUID  `json:"userId"`
	OwnerID *uuid.UUID `json:"ownerId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewActor builds an ActorRef, omitting a nil owner.
func NewActor(userID, ownerID uuid.UUID) *ActorRef {
	ref := &ActorRef{UserID: userID}
	if ownerID != uuid.Nil {
		owner := ownerID
		ref.OwnerID = &owner
	}
	return ref
}
