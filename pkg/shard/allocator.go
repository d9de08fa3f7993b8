// Package shard materializes example streams into sharded TFRecord files
// and shuffles them in place.
package shard

import (
	"errors"
	"fmt"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
	"github.com/turbopuffer/tpuf-datagen/pkg/tfrecord"
)

// Allocator routes examples round robin across a fixed set of shard files.
type Allocator struct {
	files   []string
	writers []*tfrecord.Writer
	counts  []int64
	total   int64
}

// NewAllocator creates (or truncates) one record file per name. On failure
// any file already opened is closed and left on disk.
func NewAllocator(files []string) (*Allocator, error) {
	if len(files) == 0 {
		return nil, errors.New("allocator needs at least one shard")
	}
	writers := make([]*tfrecord.Writer, 0, len(files))
	for _, name := range files {
		w, err := tfrecord.Create(name)
		if err != nil {
			for _, opened := range writers {
				err = errors.Join(err, opened.Close())
			}
			return nil, fmt.Errorf("opening shard %s: %w", name, err)
		}
		writers = append(writers, w)
	}
	return &Allocator{
		files:   files,
		writers: writers,
		counts:  make([]int64, len(files)),
	}, nil
}

// Route returns the shard index for the i'th example (0-indexed).
func (a *Allocator) Route(i int64) int {
	return int(i % int64(len(a.writers)))
}

// Write serializes ex and appends it to the next shard in rotation.
func (a *Allocator) Write(ex example.Example) error {
	data, err := example.Marshal(ex)
	if err != nil {
		return fmt.Errorf("serializing example %d: %w", a.total, err)
	}
	idx := a.Route(a.total)
	if err := a.writers[idx].Write(data); err != nil {
		return fmt.Errorf("writing example %d to shard %d: %w", a.total, idx, err)
	}
	a.counts[idx]++
	a.total++
	return nil
}

// Total returns the number of examples written.
func (a *Allocator) Total() int64 {
	return a.total
}

// Counts returns the number of examples written to each shard.
func (a *Allocator) Counts() []int64 {
	out := make([]int64, len(a.counts))
	copy(out, a.counts)
	return out
}

// Close finalizes every shard and returns the file names in index order.
func (a *Allocator) Close() ([]string, error) {
	var errs []error
	for i, w := range a.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing shard %s: %w", a.files[i], err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	out := make([]string, len(a.files))
	copy(out, a.files)
	return out, nil
}
