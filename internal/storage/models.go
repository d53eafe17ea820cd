package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of the target a watch fires on.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// ParseDirection accepts "above"/"below" in any case.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionAbove:
		return DirectionAbove, nil
	case DirectionBelow:
		return DirectionBelow, nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

// Watch is a persisted price-threshold subscription.
type Watch struct {
	ID             int64
	Owner          string
	Symbol         string
	AssetRef       string
	Direction      Direction
	Target         decimal.Decimal
	Active         bool
	CreatedAt      time.Time
	TriggeredAt    *time.Time
	TriggeredPrice decimal.NullDecimal
}

// NewWatch carries the fields a caller supplies on creation.
type NewWatch struct {
	Owner     string
	Symbol    string
	AssetRef  string
	Direction Direction
	Target    decimal.Decimal
	// CreatedAt defaults to the insert time when zero.
	CreatedAt time.Time
}

func (w NewWatch) createdAt() time.Time {
	if w.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return w.CreatedAt.UTC()
}

// WatchStore persists watches. Implementations serialize concurrent writers.
type WatchStore interface {
	CreateWatch(ctx context.Context, w NewWatch) (int64, error)
	// ListWatchesForOwner returns every watch of owner, newest first.
	ListWatchesForOwner(ctx context.Context, owner string) ([]Watch, error)
	ListActiveWatches(ctx context.Context) ([]Watch, error)
	// DeactivateWatch is a no-op for inactive or unknown ids.
	DeactivateWatch(ctx context.Context, id int64) error
	// ClaimTrigger deactivates an active watch and records the trigger.
	// It reports false when the watch was already inactive.
	ClaimTrigger(ctx context.Context, id int64, price decimal.Decimal, at time.Time) (bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
