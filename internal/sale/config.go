package sale

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/model"
)

// Bounds are the registry-level limits a pool validates at construction.
type Bounds struct {
	// HardCapFloor is the minimum permitted hard cap.
	HardCapFloor decimal.Decimal

	// MaxDuration is the longest permitted sale window. Zero means
	// unbounded.
	MaxDuration time.Duration
}

// ValidateConfig checks every invariant of a sale configuration.
// The first violated rule wins.
func ValidateConfig(cfg model.SaleConfig, bounds Bounds) error {
	if cfg.PricePerToken.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: price per token must be positive, got %s", ErrInvalidConfig, cfg.PricePerToken)
	}
	if cfg.HardCap.LessThan(bounds.HardCapFloor) {
		return fmt.Errorf("%w: hard cap %s below floor %s", ErrInvalidConfig, cfg.HardCap, bounds.HardCapFloor)
	}
	if cfg.SoftCap.LessThanOrEqual(decimal.Zero) || cfg.SoftCap.GreaterThan(cfg.HardCap) {
		return fmt.Errorf("%w: need 0 < soft cap (%s) <= hard cap (%s)", ErrInvalidConfig, cfg.SoftCap, cfg.HardCap)
	}
	if cfg.MinContribution.LessThanOrEqual(decimal.Zero) || cfg.MinContribution.GreaterThan(cfg.MaxContribution) {
		return fmt.Errorf("%w: need 0 < min contribution (%s) <= max contribution (%s)",
			ErrInvalidConfig, cfg.MinContribution, cfg.MaxContribution)
	}
	if !cfg.StartTime.Before(cfg.EndTime) {
		return fmt.Errorf("%w: start time must precede end time", ErrInvalidConfig)
	}
	if bounds.MaxDuration > 0 && cfg.EndTime.Sub(cfg.StartTime) > bounds.MaxDuration {
		return fmt.Errorf("%w: sale window %s exceeds maximum %s",
			ErrInvalidConfig, cfg.EndTime.Sub(cfg.StartTime), bounds.MaxDuration)
	}
	if cfg.TGEPercent < 0 || cfg.TGEPercent > 100 {
		return fmt.Errorf("%w: tge percent %d outside 0-100", ErrInvalidConfig, cfg.TGEPercent)
	}
	if cfg.CliffDuration < 0 || cfg.VestingDuration < 0 {
		return fmt.Errorf("%w: cliff and vesting durations must be non-negative", ErrInvalidConfig)
	}
	return nil
}
