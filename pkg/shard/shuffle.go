package shard

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/turbopuffer/tpuf-datagen/pkg/randstate"
	"github.com/turbopuffer/tpuf-datagen/pkg/tfrecord"
)

// Shuffle reads every record of an unshuffled shard into memory, permutes
// them with rs and writes them to the file name without the unshuffled
// marker. The source file is removed once the replacement is synced.
// Returns the destination file name.
//
// The whole shard must fit in memory; callers bound shard size through the
// shard count.
func Shuffle(path string, rs *randstate.State) (string, error) {
	dst, err := ShuffledName(path)
	if err != nil {
		return "", err
	}

	records, err := tfrecord.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading unshuffled shard: %w", err)
	}
	rs.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	w, err := tfrecord.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating shuffled shard: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return "", fmt.Errorf("writing shuffled shard %s: %w", dst, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing shuffled shard %s: %w", dst, err)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("removing unshuffled shard: %w", err)
	}
	return dst, nil
}

// ShuffleAll shuffles each file in order and returns the destination names.
// Progress is optional.
func ShuffleAll(files []string, rs *randstate.State, progress io.Writer) ([]string, error) {
	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = progressbar.NewOptions(
			len(files),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("shuffling shards"),
			progressbar.OptionShowCount(),
		)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		dst, err := Shuffle(f, rs)
		if err != nil {
			return out, fmt.Errorf("shuffling %s: %w", f, err)
		}
		out = append(out, dst)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return out, nil
}
