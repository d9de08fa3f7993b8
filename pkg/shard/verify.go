package shard

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/turbopuffer/tpuf-datagen/pkg/tfrecord"
)

// CountRecords reads every file concurrently, validating record checksums,
// and returns the record count of each file in input order.
func CountRecords(ctx context.Context, files []string) ([]int64, error) {
	counts := make([]int64, len(files))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, runtime.NumCPU()-1))
	for i, f := range files {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := tfrecord.CountFile(f)
			if err != nil {
				return fmt.Errorf("counting records in %s: %w", f, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Verify checks that each file holds the expected number of records.
func Verify(ctx context.Context, files []string, want []int64) error {
	if len(files) != len(want) {
		return fmt.Errorf("have %d files but %d expected counts", len(files), len(want))
	}
	got, err := CountRecords(ctx, files)
	if err != nil {
		return err
	}
	for i := range files {
		if got[i] != want[i] {
			return fmt.Errorf(
				"shard %s holds %d records, expected %d",
				files[i],
				got[i],
				want[i],
			)
		}
	}
	return nil
}
