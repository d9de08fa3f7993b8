package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/turbopuffer/tpuf-datagen/pkg/ledger"
	"github.com/turbopuffer/tpuf-datagen/pkg/randstate"
)

func main() {
	flag.Parse()

	logger := newLogger()

	rctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var exitCode int
	if err := run(rctx, logger, os.Stdout); err != nil {
		if isConfigError(err) {
			logger.Error("invalid configuration", slog.String("error", err.Error()))
		} else {
			logger.Error("encountered top-level error", slog.String("error", err.Error()))
		}
		exitCode = 1
	}

	os.Exit(exitCode)
}

func run(ctx context.Context, logger *slog.Logger, out io.Writer) error {
	if *numShards < 1 {
		return fmt.Errorf("-num_shards must be at least 1, got %d", *numShards)
	}
	if *maxCases < 0 {
		return fmt.Errorf("-max_cases must not be negative, got %d", *maxCases)
	}

	cfg := registryConfig{
		tmpDir:        *tmpDir,
		msmarcoCorpus: *msmarcoCorpus,
		embeddingsDir: *embeddingsDir,
		rs:            randstate.New(*randomSeed),
	}
	all := problemRegistry(cfg)
	available := availableProblems(all, cfg)

	if *listProblems {
		for _, name := range sortedNames(available) {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	if err := checkResources(*problemSelector, all, cfg); err != nil {
		return err
	}
	names, err := resolveProblems(*problemSelector, available)
	if err != nil {
		return err
	}

	dir := *dataDir
	if dir == "" {
		dir = os.TempDir()
		logger.Warn("no -data_dir specified, writing to the system temp directory", slog.String("dir", dir))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	lgr, err := maybeOpenLedger(ctx)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	if lgr != nil {
		defer lgr.Close()
		logger.Info("connected to ledger, will record generated splits", slog.String("run", lgr.RunID()))
	}

	var progress io.Writer
	if *showProgress {
		progress = os.Stderr
	}

	d := &dispatcher{
		problems:  available,
		rs:        cfg.rs,
		dataDir:   dir,
		numShards: *numShards,
		maxCases:  *maxCases,
		verify:    *verifyShards,
		manifest:  *writeManifest,
		ledger:    lgr,
		progress:  progress,
		now:       time.Now,
	}

	logger.Info(
		"generating problems",
		slog.Int("count", len(names)),
		slog.String("data_dir", dir),
		slog.Uint64("seed", *randomSeed),
	)
	results, err := d.run(ctx, logger, names)
	for _, res := range results {
		fmt.Fprint(out, describeResult(res))
	}
	return err
}

// checkResources reports an exact selector naming a registered problem whose
// required resources are missing, which is more useful than "unknown problem".
func checkResources(selector string, all map[string]problem, cfg registryConfig) error {
	p, ok := all[selector]
	if !ok {
		return nil
	}
	var missing []string
	for _, r := range p.requires {
		if !cfg.has(r) {
			missing = append(missing, "-"+string(r))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &configError{
		msg:       fmt.Sprintf("problem %q requires %s", selector, strings.Join(missing, ", ")),
		available: sortedNames(availableProblems(all, cfg)),
	}
}

func maybeOpenLedger(ctx context.Context) (*ledger.Ledger, error) {
	if *ledgerDSN == "" {
		return nil, nil
	}
	return ledger.Open(ctx, *ledgerDriver, *ledgerDSN)
}

func describeResult(res *problemResult) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("\n%s:\n", res.name))
	for _, s := range res.splits {
		sizes := newSizeHistogram(s.counts)
		builder.WriteString(fmt.Sprintf("   %s: %d examples in %d shards (%s)\n",
			s.split, sizes.sum(), len(s.files), s.duration.Round(time.Millisecond)))
		if len(s.files) > 1 {
			builder.WriteString(fmt.Sprintf("   - min shard: %d\n", sizes.min()))
			builder.WriteString(fmt.Sprintf("   - p50 shard: %d\n", sizes.percentile(50)))
			builder.WriteString(fmt.Sprintf("   - max shard: %d\n", sizes.max()))
			builder.WriteString(fmt.Sprintf("   - avg shard: %.1f\n", sizes.avg()))
		}
		if len(s.files) > 0 {
			builder.WriteString(fmt.Sprintf("   - first: %s\n", s.files[0]))
		}
	}
	return builder.String()
}

// isConfigError reports whether err came from problem selection.
func isConfigError(err error) bool {
	var ce *configError
	return errors.As(err, &ce)
}
