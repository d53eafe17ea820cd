package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/assets"
	"coinwatch/internal/errs"
	"coinwatch/internal/observability"
	"coinwatch/internal/storage"
)

var targetPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Targets are stored as NUMERIC(38, 18).
const (
	maxTargetIntegerDigits  = 20
	maxTargetFractionDigits = 18
)

// CreateRequest is a watch registration as received from a chat or API.
type CreateRequest struct {
	Owner     string
	Symbol    string
	AssetRef  string
	Direction string
	Target    string
}

// Watches validates and manages watches on behalf of their owners.
type Watches struct {
	store   storage.WatchStore
	catalog *assets.Catalog
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewWatches constructs the watch service.
func NewWatches(store storage.WatchStore, catalog *assets.Catalog, metrics *observability.Metrics, logger zerolog.Logger) *Watches {
	return &Watches{
		store:   store,
		catalog: catalog,
		metrics: metrics,
		logger:  logger.With().Str("component", "watches").Logger(),
	}
}

// ParseTarget accepts "42000", "42,000" or "0.35"; the value must be positive.
func ParseTarget(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if !targetPattern.MatchString(cleaned) {
		return decimal.Zero, errs.Validation(fmt.Sprintf("target %q is not a number", raw))
	}
	intPart, fracPart, _ := strings.Cut(cleaned, ".")
	if len(strings.TrimLeft(intPart, "0")) > maxTargetIntegerDigits {
		return decimal.Zero, errs.Validation(fmt.Sprintf("target %q is too large", raw))
	}
	if len(strings.TrimRight(fracPart, "0")) > maxTargetFractionDigits {
		return decimal.Zero, errs.Validation(fmt.Sprintf("target %q has more than %d decimal places", raw, maxTargetFractionDigits))
	}
	target, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, errs.Validation(fmt.Sprintf("target %q is not a number", raw))
	}
	if !target.IsPositive() {
		return decimal.Zero, errs.Validation("target must be greater than zero")
	}
	return target, nil
}

// Create validates req and stores an active watch. Invalid requests never reach the store.
func (s *Watches) Create(ctx context.Context, req CreateRequest) (storage.Watch, error) {
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return storage.Watch{}, errs.Validation("owner is required")
	}

	symbol := assets.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return storage.Watch{}, errs.Validation("symbol is required")
	}

	ref := strings.TrimSpace(req.AssetRef)
	if ref == "" {
		resolved, ok := s.catalog.RefFor(symbol)
		if !ok {
			return storage.Watch{}, errs.Validation(fmt.Sprintf("unsupported asset %s", symbol))
		}
		ref = resolved
	}

	direction, err := storage.ParseDirection(req.Direction)
	if err != nil {
		return storage.Watch{}, errs.Validation(err.Error())
	}

	target, err := ParseTarget(req.Target)
	if err != nil {
		return storage.Watch{}, err
	}

	// timestamptz keeps microseconds
	nw := storage.NewWatch{
		Owner:     owner,
		Symbol:    symbol,
		AssetRef:  ref,
		Direction: direction,
		Target:    target,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	id, err := s.store.CreateWatch(ctx, nw)
	if err != nil {
		return storage.Watch{}, fmt.Errorf("create watch: %w", err)
	}
	s.metrics.RecordWatchCreated()
	s.logger.Info().Int64("watch_id", id).
		Str("owner", owner).
		Str("symbol", symbol).
		Str("direction", string(direction)).
		Str("target", target.String()).
		Msg("watch created")

	return storage.Watch{
		ID:        id,
		Owner:     owner,
		Symbol:    symbol,
		AssetRef:  ref,
		Direction: direction,
		Target:    target,
		Active:    true,
		CreatedAt: nw.CreatedAt,
	}, nil
}

// ListForOwner returns owner's watches, newest first.
func (s *Watches) ListForOwner(ctx context.Context, owner string) ([]storage.Watch, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, errs.Validation("owner is required")
	}
	watches, err := s.store.ListWatchesForOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	return watches, nil
}

// Deactivate switches off one of owner's watches. Deactivating an inactive
// watch is a no-op; ids owned by someone else are reported as not found.
func (s *Watches) Deactivate(ctx context.Context, owner string, id int64) (storage.Watch, error) {
	watches, err := s.ListForOwner(ctx, owner)
	if err != nil {
		return storage.Watch{}, err
	}
	for _, w := range watches {
		if w.ID != id {
			continue
		}
		if !w.Active {
			return w, nil
		}
		if err := s.store.DeactivateWatch(ctx, id); err != nil {
			return storage.Watch{}, fmt.Errorf("deactivate watch: %w", err)
		}
		w.Active = false
		s.logger.Info().Int64("watch_id", id).Str("owner", owner).Msg("watch deactivated")
		return w, nil
	}
	return storage.Watch{}, errs.NotFound("deactivate watch", fmt.Sprintf("watch #%d", id))
}
