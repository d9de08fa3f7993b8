// Command shardstat inspects shard sets written by tpuf-datagen.
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
	"path/filepath"
	"slices"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
	"github.com/turbopuffer/tpuf-datagen/pkg/manifest"
	"github.com/turbopuffer/tpuf-datagen/pkg/shard"
	"github.com/turbopuffer/tpuf-datagen/pkg/tfrecord"
)

var (
	flagGlob = flag.String(
		"glob",
		"",
		"A glob of shard files to count, e.g. /data/algorithmic_*-train-*",
	)
	flagManifest = flag.String(
		"manifest",
		"",
		"A {problem}-manifest.yaml to check shard digests and counts against",
	)
	flagDump = flag.Bool(
		"dump",
		false,
		"Print the first example of every shard",
	)
)

func main() {
	flag.Parse()
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger, os.Stdout); err != nil {
		logger.Error("top-level error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, out io.Writer) error {
	if *flagGlob == "" && *flagManifest == "" {
		flag.Usage()
		return errors.New("one of -glob or -manifest is required")
	}

	if *flagManifest != "" {
		m, err := manifest.Read(*flagManifest)
		if err != nil {
			return err
		}
		if err := checkManifest(ctx, filepath.Dir(*flagManifest), m); err != nil {
			return fmt.Errorf("checking manifest: %w", err)
		}
		logger.Info("manifest matches shards on disk", slog.String("problem", m.Problem))
	}

	if *flagGlob == "" {
		return nil
	}
	files, err := filepath.Glob(*flagGlob)
	if err != nil {
		return fmt.Errorf("expanding glob: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files match %s", *flagGlob)
	}
	slices.Sort(files)

	bar := progressbar.Default(-1, "counting records")
	counts, err := shard.CountRecords(ctx, files)
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprint(out, describeCounts(files, counts))

	if *flagDump {
		for _, f := range files {
			ex, err := firstExample(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", filepath.Base(f), ex)
		}
	}
	return nil
}

// checkManifest validates digests first, then record counts, so a count
// mismatch is never reported for a file that was rewritten.
func checkManifest(ctx context.Context, dir string, m *manifest.Manifest) error {
	if err := manifest.Check(dir, m); err != nil {
		return err
	}
	for _, split := range m.Splits {
		files := make([]string, len(split.Shards))
		want := make([]int64, len(split.Shards))
		var total int64
		for i, s := range split.Shards {
			files[i] = filepath.Join(dir, s.File)
			want[i] = s.Examples
			total += s.Examples
		}
		if total != split.Examples {
			return fmt.Errorf("split %s lists %d examples but its shards sum to %d", split.Name, split.Examples, total)
		}
		if err := shard.Verify(ctx, files, want); err != nil {
			return fmt.Errorf("split %s: %w", split.Name, err)
		}
	}
	return nil
}

func describeCounts(files []string, counts []int64) string {
	var builder strings.Builder
	var total int64
	for i, f := range files {
		builder.WriteString(fmt.Sprintf("%s\t%d\n", filepath.Base(f), counts[i]))
		total += counts[i]
	}
	builder.WriteString(fmt.Sprintf("total\t%d (%d files)\n", total, len(files)))
	return builder.String()
}

func firstExample(path string) (example.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard: %w", err)
	}
	defer f.Close()

	record, err := tfrecord.NewReader(f).Next()
	if errors.Is(err, io.EOF) {
		return example.Example{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading first record of %s: %w", path, err)
	}
	ex, err := example.Unmarshal(record)
	if err != nil {
		return nil, fmt.Errorf("decoding first record of %s: %w", path, err)
	}
	return ex, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newLogger() *slog.Logger {
	var leveler slog.Leveler
	if l, ok := logLevels[strings.ToLower(os.Getenv("LOG_LEVEL"))]; ok {
		leveler = l
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: leveler,
	}))
}
