package testutil

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/pkg/auth"
	"github.com/angelmondragon/settlement-core/pkg/enums"
)

func BuyerActor(userID uuid.UUID) auth.Actor {
	return auth.Actor{UserID: userID, Role: enums.RoleBuyer}
}

// StoreActor acts as the owner operating storeID.
func StoreActor(ownerID, storeID uuid.UUID) auth.Actor {
	id := storeID
	return auth.Actor{UserID: ownerID, StoreID: &id, Role: enums.RoleStore}
}

func AdminActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}
