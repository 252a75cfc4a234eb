package infrastructure

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"review-workflow/config"
	"review-workflow/domain"
)

// OpenDatabase connects to the configured driver and migrates the schema.
func OpenDatabase(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return NewSQLiteConnection(cfg.SQLitePath, log)
	default:
		return NewMySQLConnection(cfg.DBDSN, log)
	}
}

func NewMySQLConnection(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN is not set in environment")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("✅ Connected to MySQL and migrated schema")
	return db, nil
}

// Migrate creates or updates every table the workflow needs.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Employee{},
		&domain.QuestionnaireTemplate{},
		&domain.QuestionSection{},
		&domain.Assignment{},
		&domain.SectionAnswer{},
		&domain.WorkflowTransition{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
