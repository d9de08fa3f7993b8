package shard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// UnshuffledMarker distinguishes a shard file written by Generate from its
// shuffled replacement.
const UnshuffledMarker = "-unshuffled"

// Split names.
const (
	SplitTrain = "train"
	SplitDev   = "dev"
)

// ErrNoMarker is returned when a file name has no unshuffled marker.
var ErrNoMarker = errors.New("file name has no unshuffled marker")

// FileNames returns the shard file names for a problem split, in shard
// index order:
//
//	{dir}/{problem}-unshuffled-{split}-{index:05d}-of-{count:05d}
//
// The marker is omitted when unshuffled is false.
func FileNames(dir, problem, split string, numShards int, unshuffled bool) []string {
	prefix := problem
	if unshuffled {
		prefix += UnshuffledMarker
	}
	names := make([]string, numShards)
	for i := range numShards {
		names[i] = filepath.Join(
			dir,
			fmt.Sprintf("%s-%s-%05d-of-%05d", prefix, split, i, numShards),
		)
	}
	return names
}

// ShuffledName strips the unshuffled marker from the base of path.
func ShuffledName(path string) (string, error) {
	dir, base := filepath.Split(path)
	idx := strings.LastIndex(base, UnshuffledMarker)
	if idx < 0 {
		return "", fmt.Errorf("%q: %w", path, ErrNoMarker)
	}
	return dir + base[:idx] + base[idx+len(UnshuffledMarker):], nil
}
