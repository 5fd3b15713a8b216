package db

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate appends an exclusive row lock to the statement. SQLite has no
// FOR UPDATE; its single-writer lock already serializes the transaction.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && strings.EqualFold(tx.Dialector.Name(), "sqlite") {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
