package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// Authorization is the capability check passed explicitly into every
// order and withdrawal operation.
type Authorization interface {
	ActorID() uuid.UUID
	IsRole(role enums.Role) bool
	IsUser(userID uuid.UUID) bool
	OwnsStore(storeID uuid.UUID) bool
	ActingStore() (uuid.UUID, bool)
}

// Actor is the Authorization backed by verified token claims.
type Actor struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    enums.Role
}

var _ Authorization = Actor{}

func (a Actor) ActorID() uuid.UUID {
	return a.UserID
}

func (a Actor) IsRole(role enums.Role) bool {
	return a.Role == role
}

func (a Actor) IsUser(userID uuid.UUID) bool {
	return a.UserID != uuid.Nil && a.UserID == userID
}

// OwnsStore reports whether the actor operates the given store.
func (a Actor) OwnsStore(storeID uuid.UUID) bool {
	return a.Role == enums.RoleStore && a.StoreID != nil && *a.StoreID == storeID
}

// ActingStore returns the store a store-role actor operates.
func (a Actor) ActingStore() (uuid.UUID, bool) {
	if a.Role != enums.RoleStore || a.StoreID == nil {
		return uuid.Nil, false
	}
	return *a.StoreID, true
}
