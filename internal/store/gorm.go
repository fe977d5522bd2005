package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionValue is one persisted key for one client profile.
type SessionValue struct {
	Profile   string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"size:256;not null"`
	UpdatedAt time.Time
}

// Gorm stores values in the session_values table, scoped by profile so
// several clients can share a database.
type Gorm struct {
	db      *gorm.DB
	profile string
}

// NewGorm migrates the table and returns a Store for profile.
func NewGorm(db *gorm.DB, profile string) (*Gorm, error) {
	if profile == "" {
		profile = "default"
	}
	if err := db.AutoMigrate(&SessionValue{}); err != nil {
		return nil, fmt.Errorf("migrate session_values: %w", err)
	}
	return &Gorm{db: db, profile: profile}, nil
}

// OpenPostgres dials with a few retries; the database is often still
// starting when the client comes up next to it.
func OpenPostgres(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	const maxRetries = 3
	const retryInterval = 2 * time.Second

	var err error
	for i := 0; i <= maxRetries; i++ {
		var db *gorm.DB
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return db, nil
		}
		logger.Warn("postgres connect retry", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("connect postgres: %w", err)
}

func (g *Gorm) Get(ctx context.Context, key string) (string, error) {
	var v SessionValue
	err := g.db.WithContext(ctx).
		Where("profile = ? AND name = ?", g.profile, key).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v.Value, nil
}

func (g *Gorm) Set(ctx context.Context, key, value string) error {
	v := SessionValue{Profile: g.profile, Name: key, Value: value}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&v).Error
}

func (g *Gorm) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).
		Where("profile = ? AND name = ?", g.profile, key).
		Delete(&SessionValue{}).Error
}
