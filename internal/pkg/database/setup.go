package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var DB *gorm.DB

// GetDB returns the shared handle set up by SetupDatabase or SetDB.
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the shared handle, e.g. with a test database.
func SetDB(db *gorm.DB) {
	DB = db
}

// Driver returns the configured DB_DRIVER, defaulting to postgres.
func Driver() string {
	d := strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", DriverPostgres)))
	if d == DriverMySQL {
		return DriverMySQL
	}
	return DriverPostgres
}

// DSN builds the gorm DSN for the configured driver.
func DSN() string {
	if Driver() == DriverMySQL {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_NAME", ""),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_SSLMODE", "disable"),
	)
}

// MigrationURL builds the golang-migrate database URL for the configured driver.
func MigrationURL() string {
	if Driver() == DriverMySQL {
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "5432"),
		env.GetEnv("DB_NAME", ""),
		env.GetEnv("DB_SSLMODE", "disable"),
	)
}

func dialector() gorm.Dialector {
	if Driver() == DriverMySQL {
		return mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		})
	}
	return postgres.Open(DSN())
}

// Config is shared by the server and tests so migrations behave the same.
func Config() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
}

// Models lists every table owned by the service.
func Models() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.Product{},
		&models.Price{},
		&models.Subscription{},
		&models.BillingWebhookEvent{},
	}
}

func SetupDatabase() {
	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = open()
		if err == nil {
			if env.IsDev() || env.GetEnv("DB_AUTO_MIGRATE", "false") == "true" {
				if err := DB.AutoMigrate(Models()...); err != nil {
					log.Errorf("[Database] AutoMigrate failed: %v", err)
				}
			}
			return
		}

		log.Warnf("[Database] Failed to connect to %s (try %d/%d): %v", Driver(), i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

func open() (*gorm.DB, error) {
	db, err := gorm.Open(dialector(), Config())
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", Driver(), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve %s sql db handle: %w", Driver(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", Driver(), err)
	}
	return db, nil
}
