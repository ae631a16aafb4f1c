package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate applies all pending schema migrations in order.
func Migrate(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, migrationList()).Migrate()
}

func migrationList() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createEscalationEventsTable(),
		createDeliveryAttemptsTable(),
	}
}
