package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"coinwatch/internal/errs"
)

// watchRow is the gorm mapping of the watches table.
type watchRow struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	Owner          string     `gorm:"not null;index:idx_watches_owner"`
	Symbol         string     `gorm:"not null"`
	AssetRef       string     `gorm:"column:asset_ref;not null"`
	Direction      string     `gorm:"not null"`
	Target         string     `gorm:"type:text;not null"`
	Active         bool       `gorm:"not null;index:idx_watches_active"`
	CreatedAt      time.Time  `gorm:"not null"`
	TriggeredAt    *time.Time
	TriggeredPrice *string `gorm:"type:text"`
}

func (watchRow) TableName() string { return "watches" }

// SQLiteStore keeps watches in a single-file SQLite database.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database.dsn is required for sqlite")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one connection serializes writers and avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&watchRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *SQLiteStore) CreateWatch(ctx context.Context, w NewWatch) (int64, error) {
	row := watchRow{
		Owner:     w.Owner,
		Symbol:    w.Symbol,
		AssetRef:  w.AssetRef,
		Direction: string(w.Direction),
		Target:    w.Target.String(),
		Active:    true,
		CreatedAt: w.createdAt(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, errs.Storage("create watch", err)
	}
	return row.ID, nil
}

func (s *SQLiteStore) ListWatchesForOwner(ctx context.Context, owner string) ([]Watch, error) {
	var rows []watchRow
	if err := s.db.WithContext(ctx).Where("owner = ?", owner).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, errs.Storage("list watches for owner", err)
	}
	return toWatches(rows)
}

func (s *SQLiteStore) ListActiveWatches(ctx context.Context) ([]Watch, error) {
	var rows []watchRow
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, errs.Storage("list active watches", err)
	}
	return toWatches(rows)
}

func (s *SQLiteStore) DeactivateWatch(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&watchRow{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false).Error
	if err != nil {
		return errs.Storage("deactivate watch", err)
	}
	return nil
}

func (s *SQLiteStore) ClaimTrigger(ctx context.Context, id int64, price decimal.Decimal, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&watchRow{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"active":          false,
			"triggered_at":    at.UTC(),
			"triggered_price": price.String(),
		})
	if result.Error != nil {
		return false, errs.Storage("claim trigger", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func toWatches(rows []watchRow) ([]Watch, error) {
	out := make([]Watch, 0, len(rows))
	for _, row := range rows {
		target, err := decimal.NewFromString(row.Target)
		if err != nil {
			return nil, fmt.Errorf("parse target of watch %d: %w", row.ID, err)
		}
		w := Watch{
			ID:          row.ID,
			Owner:       row.Owner,
			Symbol:      row.Symbol,
			AssetRef:    row.AssetRef,
			Direction:   Direction(row.Direction),
			Target:      target,
			Active:      row.Active,
			CreatedAt:   row.CreatedAt,
			TriggeredAt: row.TriggeredAt,
		}
		if row.TriggeredPrice != nil {
			price, err := decimal.NewFromString(*row.TriggeredPrice)
			if err != nil {
				return nil, fmt.Errorf("parse triggered price of watch %d: %w", row.ID, err)
			}
			w.TriggeredPrice = decimal.NewNullDecimal(price)
		}
		out = append(out, w)
	}
	return out, nil
}

var _ WatchStore = (*SQLiteStore)(nil)
