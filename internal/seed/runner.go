package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Validate checks run settings.
func (c *Config) Validate() error {
	switch {
	case c.Days <= 0:
		return fmt.Errorf("%w: days must be positive", ErrInvalidConfig)
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	case c.Rate < 0:
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case !model.ValidKey(c.UserID):
		return fmt.Errorf("%w: user id %q", ErrInvalidConfig, c.UserID)
	}
	return nil
}

// Run generates a history and submits it. Individual rejections are
// counted, not fatal; the returned error covers setup failures and
// cancellation.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	log := logger.Get().Named("seed")
	started := time.Now()

	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	client, err := NewClient(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return Stats{}, err
	}

	log.Info(ctx, "starting seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("user", cfg.UserID),
		logger.Int("days", cfg.Days),
		logger.Int("concurrency", cfg.Concurrency))

	if err := client.Health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}

	end := cfg.End
	if end.IsZero() {
		end = time.Now()
	}
	h, err := Generate(cfg.UserID, cfg.Days, end, cfg.Seed)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Generated: len(h.Records)}

	if cfg.OutputFile != "" {
		if err := saveHistory(cfg.OutputFile, h); err != nil {
			log.Warn(ctx, "failed to save history", logger.Error(err))
		}
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	var accepted, duplicate, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for _, rec := range h.Records {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			outcome, err := client.Submit(gctx, cfg.UserID, rec)
			switch {
			case err != nil:
				failed.Add(1)
				log.Warn(gctx, "record not stored", logger.String("event_id", rec.EventID), logger.Error(err))
			case outcome == OutcomeDuplicate:
				duplicate.Add(1)
			default:
				accepted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(started)

	log.Info(ctx, "seed run finished",
		logger.Int("generated", stats.Generated),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration))

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("seed run interrupted: %w", err)
	}
	return stats, nil
}

// saveHistory writes h as indented JSON to path.
func saveHistory(path string, h History) error { //nolint:gocritic // hugeParam
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s", path), err)
	}
	return nil
}
