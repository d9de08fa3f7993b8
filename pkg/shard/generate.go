package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
)

// How often Generate logs the running example count.
const logEvery = 100_000

// GenerateConfig describes one split of a problem.
type GenerateConfig struct {
	Dir       string // Output directory, must exist
	Problem   string
	Split     string
	NumShards int
	MaxCases  int // Stop after this many examples; 0 consumes the whole stream

	Logger   *slog.Logger // Optional
	Progress io.Writer    // Optional progress bar destination
}

func (c GenerateConfig) validate() error {
	switch {
	case c.Problem == "":
		return errors.New("problem name is required")
	case c.Split == "":
		return errors.New("split is required")
	case c.NumShards < 1:
		return fmt.Errorf("num shards must be at least 1, got %d", c.NumShards)
	case c.MaxCases < 0:
		return fmt.Errorf("max cases must not be negative, got %d", c.MaxCases)
	}
	return nil
}

// GenerateResult lists the unshuffled shard files written for one split.
type GenerateResult struct {
	Files    []string // Exactly NumShards entries, in shard order
	Counts   []int64  // Examples per shard
	Total    int64
	Duration time.Duration
}

// Generate pulls examples from src and writes them round robin into
// NumShards unshuffled record files. Example i lands in shard i mod
// NumShards.
//
// If src yields an error, or ctx is canceled, generation stops and the
// shard files written so far are left on disk.
func Generate(
	ctx context.Context,
	src iter.Seq2[example.Example, error],
	cfg GenerateConfig,
) (*GenerateResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid generate config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	files := FileNames(cfg.Dir, cfg.Problem, cfg.Split, cfg.NumShards, true)
	alloc, err := NewAllocator(files)
	if err != nil {
		return nil, fmt.Errorf("allocating shards: %w", err)
	}

	var bar *progressbar.ProgressBar
	if cfg.Progress != nil {
		max := int64(-1)
		if cfg.MaxCases > 0 {
			max = int64(cfg.MaxCases)
		}
		bar = progressbar.NewOptions64(
			max,
			progressbar.OptionSetWriter(cfg.Progress),
			progressbar.OptionSetDescription(fmt.Sprintf("generating %s %s", cfg.Problem, cfg.Split)),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("examples"),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	start := time.Now()
	if err := drain(ctx, src, alloc, cfg.MaxCases, logger, bar); err != nil {
		_, closeErr := alloc.Close()
		return nil, errors.Join(err, closeErr)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	written, err := alloc.Close()
	if err != nil {
		return nil, fmt.Errorf("finalizing shards: %w", err)
	}
	result := &GenerateResult{
		Files:    written,
		Counts:   alloc.Counts(),
		Total:    alloc.Total(),
		Duration: time.Since(start),
	}
	logger.Info(
		"generated split",
		slog.String("problem", cfg.Problem),
		slog.String("split", cfg.Split),
		slog.Int64("examples", result.Total),
		slog.Int("shards", cfg.NumShards),
		slog.Duration("took", result.Duration.Round(time.Millisecond)),
	)
	return result, nil
}

func drain(
	ctx context.Context,
	src iter.Seq2[example.Example, error],
	alloc *Allocator,
	maxCases int,
	logger *slog.Logger,
	bar *progressbar.ProgressBar,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("generation interrupted before start: %w", err)
	}
	for ex, err := range src {
		if err != nil {
			return fmt.Errorf("generator failed after %d examples: %w", alloc.Total(), err)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("generation interrupted after %d examples: %w", alloc.Total(), err)
		}
		if err := alloc.Write(ex); err != nil {
			return err
		}
		n := alloc.Total()
		if bar != nil {
			_ = bar.Add(1)
		}
		if n%logEvery == 0 {
			logger.Info("generating examples", slog.Int64("written", n))
		}
		if maxCases > 0 && n >= int64(maxCases) {
			break
		}
	}
	return nil
}
