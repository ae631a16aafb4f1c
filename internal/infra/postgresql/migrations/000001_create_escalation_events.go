package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/mail-failover/internal/repository"
	"gorm.io/gorm"
)

func createEscalationEventsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_escalation_events",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.EscalationEventModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_escalation_events_occurred_at ON escalation_events (occurred_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.EscalationEventModel{})
		},
	}
}
