// Command seed-events submits a synthetic daily history for one user to a
// running risk service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/migrisk/internal/seed"
	"github.com/okian/migrisk/pkg/logger"
)

const dateLayout = "2006-01-02"

var (
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "Base URL of the service",
		Value:   "http://localhost:8000",
		EnvVars: []string{"MIGRISK_SEED_URL"},
	}

	userFlag = &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User id the history is written for",
		Required: true,
	}

	daysFlag = &cli.IntFlag{
		Name:    "days",
		Aliases: []string{"d"},
		Usage:   "Number of daily records to generate",
		Value:   30,
	}

	seedFlag = &cli.Uint64Flag{
		Name:  "seed",
		Usage: "Generator seed; the same seed reproduces the same history and event ids",
		Value: 1,
	}

	endFlag = &cli.StringFlag{
		Name:  "end",
		Usage: "Date of the last record (YYYY-MM-DD, default: today UTC)",
	}

	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "Parallel submissions",
		Value: runtime.NumCPU(),
	}

	rateFlag = &cli.Float64Flag{
		Name:  "rate",
		Usage: "Submissions per second (0 for unlimited)",
	}

	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "HTTP request timeout",
		Value: 10 * time.Second,
	}

	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write the generated history to this JSON file",
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "seed-events",
		Usage:           "Submit a synthetic daily history to the migraine risk service",
		HideHelpCommand: true,
		UsageText: `seed-events --user demo                          # 30 days ending today
   seed-events --user demo --days 90 --seed 7       # a different, longer history
   seed-events --user demo --end 2025-05-14 -o h.json`,
		Flags: []cli.Flag{
			urlFlag,
			userFlag,
			daysFlag,
			seedFlag,
			endFlag,
			concurrencyFlag,
			rateFlag,
			timeoutFlag,
			outputFlag,
			debugFlag,
		},
		Action: cmdSeed,
	}
}

func cmdSeed(c *cli.Context) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if c.Bool(debugFlag.Name) {
		_ = logger.SetLevelString("debug")
	}

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	stats, err := seed.Run(c.Context, cfg)
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d records were not stored", stats.Failed, stats.Generated)
	}
	return nil
}

func configFromFlags(c *cli.Context) (*seed.Config, error) {
	cfg := &seed.Config{
		BaseURL:     c.String(urlFlag.Name),
		UserID:      c.String(userFlag.Name),
		Days:        c.Int(daysFlag.Name),
		Seed:        c.Uint64(seedFlag.Name),
		Concurrency: c.Int(concurrencyFlag.Name),
		Rate:        c.Float64(rateFlag.Name),
		Timeout:     c.Duration(timeoutFlag.Name),
		OutputFile:  c.String(outputFlag.Name),
	}
	if raw := c.String(endFlag.Name); raw != "" {
		end, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --end %q: %w", raw, err)
		}
		cfg.End = end
	}
	return cfg, nil
}
