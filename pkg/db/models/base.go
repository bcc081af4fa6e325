package models

import "github.com/google/uuid"

// assignID fills a zero primary key so inserts do not depend on a database
// side uuid default.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// AllModels lists every table managed through AutoMigrate in dev and tests.
func AllModels() []any {
	return []any{
		&Store{},
		&Product{},
		&Order{},
		&OrderLine{},
		&StoreBalance{},
		&LedgerEntry{},
		&Withdrawal{},
		&OutboxEvent{},
	}
}
