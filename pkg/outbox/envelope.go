package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// ActorRef identifies who produced the event. System actors such as the
// gateway callback and the expiry sweep leave it nil.
type ActorRef struct {
	UserID  uuid.UUID  `json:"userId"`
	StoreID *uuid.UUID `json:"storeId,omitempty"`
	Role    enums.Role `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ActorFrom snapshots the acting identity for the event envelope.
func ActorFrom(authz auth.Authorization) *ActorRef {
	if authz == nil {
		return nil
	}
	if actor, ok := authz.(auth.Actor); ok {
		return &ActorRef{UserID: actor.UserID, StoreID: actor.StoreID, Role: actor.Role}
	}
	return &ActorRef{UserID: authz.ActorID()}
}
