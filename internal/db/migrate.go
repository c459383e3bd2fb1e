package db

import (
	"github.com/Duinho/SignalWatch/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.SchedulerRun{},
		&models.AlertSnapshot{},
		&models.FeedbackVote{},
		&models.TrustProfile{},
		&models.TesterTier{},
		&models.KeywordRule{},
	)
}
