package database

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inkwell/models"
)

func RunMigrations(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Error("migrations failed", zap.Error(err))
		return errors.Wrap(err, "auto migrate")
	}

	logger.Info("migrations completed")
	return nil
}

// PromoteAdmins grants the admin flag to every existing user whose email is
// in the list. Used to bootstrap the first admin account.
func PromoteAdmins(db *gorm.DB, emails []string, logger *zap.Logger) error {
	if len(emails) == 0 {
		return nil
	}
	result := db.Model(&models.User{}).
		Where("LOWER(email) IN ? AND admin = ?", emails, false).
		Update("admin", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "promote admins")
	}
	if result.RowsAffected > 0 {
		logger.Info("promoted users to admin", zap.Int64("count", result.RowsAffected))
	}
	return nil
}
