package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/turbopuffer/tpuf-datagen/pkg/ledger"
	"github.com/turbopuffer/tpuf-datagen/pkg/manifest"
	"github.com/turbopuffer/tpuf-datagen/pkg/randstate"
	"github.com/turbopuffer/tpuf-datagen/pkg/shard"
)

// configError reports a problem selection that cannot be satisfied. It is
// raised before any file is written.
type configError struct {
	msg       string
	available []string
}

func (e *configError) Error() string {
	var builder strings.Builder
	builder.WriteString(e.msg)
	builder.WriteString(". available problems:")
	for _, name := range e.available {
		builder.WriteString("\n  ")
		builder.WriteString(name)
	}
	return builder.String()
}

// resolveProblems matches selector against the available problems and
// returns the matching names in sorted order. A trailing * selects every
// problem with the preceding prefix.
func resolveProblems(selector string, available map[string]problem) ([]string, error) {
	names := sortedNames(available)
	if selector == "" {
		return nil, &configError{msg: "no problem selected, pass -problem", available: names}
	}

	if prefix, ok := strings.CutSuffix(selector, "*"); ok {
		var matched []string
		for _, name := range names {
			if strings.HasPrefix(name, prefix) {
				matched = append(matched, name)
			}
		}
		if len(matched) == 0 {
			return nil, &configError{
				msg:       fmt.Sprintf("no problem matches %q", selector),
				available: names,
			}
		}
		return matched, nil
	}

	if _, ok := available[selector]; !ok {
		return nil, &configError{
			msg:       fmt.Sprintf("unknown problem %q", selector),
			available: names,
		}
	}
	return []string{selector}, nil
}

// dispatcher generates, shuffles and records problems one at a time.
type dispatcher struct {
	problems  map[string]problem
	rs        *randstate.State
	dataDir   string
	numShards int
	maxCases  int
	verify    bool
	manifest  bool
	ledger    *ledger.Ledger // Optional
	progress  io.Writer      // Optional
	now       func() time.Time
}

type splitResult struct {
	split     string
	files     []string // Final shard files
	counts    []int64
	startedAt time.Time
	duration  time.Duration
}

type problemResult struct {
	name   string
	splits []splitResult
}

// run processes each named problem in order, stopping at the first error.
func (d *dispatcher) run(ctx context.Context, logger *slog.Logger, names []string) ([]*problemResult, error) {
	results := make([]*problemResult, 0, len(names))
	for _, name := range names {
		res, err := d.generateProblem(ctx, logger.With(slog.String(problemAttrKey, name)), name)
		if err != nil {
			return results, fmt.Errorf("problem %s: %w", name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *dispatcher) generateProblem(ctx context.Context, logger *slog.Logger, name string) (*problemResult, error) {
	p, ok := d.problems[name]
	if !ok {
		return nil, fmt.Errorf("problem %q is not registered", name)
	}

	// Every problem starts from the initial seed.
	d.rs.Reseed()

	plans := []struct {
		split   string
		shards  int
		factory generatorFactory
	}{
		{shard.SplitTrain, d.numShards, p.train},
		{shard.SplitDev, 1, p.dev},
	}

	res := &problemResult{name: name}
	var unshuffled [][]string
	for _, plan := range plans {
		start := d.now()
		gen, err := shard.Generate(ctx, plan.factory(), shard.GenerateConfig{
			Dir:       d.dataDir,
			Problem:   name,
			Split:     plan.split,
			NumShards: plan.shards,
			MaxCases:  d.maxCases,
			Logger:    logger.With(slog.String(splitAttrKey, plan.split)),
			Progress:  d.progress,
		})
		if err != nil {
			return nil, fmt.Errorf("generating %s data: %w", plan.split, err)
		}
		unshuffled = append(unshuffled, gen.Files)
		res.splits = append(res.splits, splitResult{
			split:     plan.split,
			counts:    gen.Counts,
			startedAt: start,
		})
	}

	// Shuffling starts only after both splits are written.
	for i, files := range unshuffled {
		shuffled, err := shard.ShuffleAll(files, d.rs, d.progress)
		if err != nil {
			return nil, fmt.Errorf("shuffling %s data: %w", res.splits[i].split, err)
		}
		res.splits[i].files = shuffled
		res.splits[i].duration = d.now().Sub(res.splits[i].startedAt)
	}
	logger.Info("shuffled shards", slog.Int("files", len(unshuffled[0])+len(unshuffled[1])))

	if d.verify {
		for _, s := range res.splits {
			if err := shard.Verify(ctx, s.files, s.counts); err != nil {
				return nil, fmt.Errorf("verifying %s shards: %w", s.split, err)
			}
		}
		logger.Debug("verified shard record counts")
	}

	if d.manifest {
		if err := d.writeManifest(res); err != nil {
			return nil, err
		}
	}

	if d.ledger != nil {
		if err := d.record(ctx, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (d *dispatcher) writeManifest(res *problemResult) error {
	m := &manifest.Manifest{
		Problem:     res.name,
		Seed:        d.rs.Seed(),
		GeneratedAt: d.now().UTC(),
	}
	for _, s := range res.splits {
		split, err := manifest.DescribeSplit(s.split, s.files, s.counts)
		if err != nil {
			return fmt.Errorf("describing %s shards: %w", s.split, err)
		}
		m.Splits = append(m.Splits, split)
	}
	if err := manifest.Write(manifest.FileName(d.dataDir, res.name), m); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func (d *dispatcher) record(ctx context.Context, res *problemResult) error {
	var errs []error
	for _, s := range res.splits {
		var total int64
		for _, c := range s.counts {
			total += c
		}
		errs = append(errs, d.ledger.Record(ctx, ledger.Entry{
			Problem:   res.name,
			Split:     s.split,
			NumShards: len(s.files),
			Examples:  total,
			Seed:      d.rs.Seed(),
			StartedAt: s.startedAt,
			Duration:  s.duration,
		}))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("recording ledger entries: %w", err)
	}
	return nil
}
