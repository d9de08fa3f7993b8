// Package manifest describes the final shard set of a generated problem so
// downstream tooling can locate and validate shards without globbing.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// Manifest is written next to the shards as {problem}-manifest.yaml.
type Manifest struct {
	Problem     string    `yaml:"problem"`
	Seed        uint64    `yaml:"seed"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Splits      []Split   `yaml:"splits"`
}

type Split struct {
	Name     string  `yaml:"name"`
	Examples int64   `yaml:"examples"`
	Shards   []Shard `yaml:"shards"`
}

type Shard struct {
	File     string `yaml:"file"` // Base name, relative to the manifest
	Examples int64  `yaml:"examples"`
	Bytes    int64  `yaml:"bytes"`
	XXHash64 string `yaml:"xxhash64"`
}

// FileName returns the manifest path for a problem in dir.
func FileName(dir, problem string) string {
	return filepath.Join(dir, problem+"-manifest.yaml")
}

// DescribeSplit hashes each shard file and returns its manifest entry.
// counts[i] is the number of examples in files[i].
func DescribeSplit(name string, files []string, counts []int64) (Split, error) {
	if len(files) != len(counts) {
		return Split{}, fmt.Errorf("have %d files but %d counts", len(files), len(counts))
	}
	split := Split{Name: name, Shards: make([]Shard, len(files))}
	for i, f := range files {
		sum, size, err := hashFile(f)
		if err != nil {
			return Split{}, err
		}
		split.Shards[i] = Shard{
			File:     filepath.Base(f),
			Examples: counts[i],
			Bytes:    size,
			XXHash64: fmt.Sprintf("%016x", sum),
		}
		split.Examples += counts[i]
	}
	return split, nil
}

func hashFile(path string) (uint64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening shard: %w", err)
	}
	defer f.Close()
	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum64(), n, nil
}

// Write encodes m as YAML at path. The file only appears once it is fully
// written and synced.
func Write(path string, m *Manifest) error {
	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating manifest: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return errors.Join(fmt.Errorf("encoding manifest: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := enc.Close(); err != nil {
		return errors.Join(fmt.Errorf("encoding manifest: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("syncing manifest: %w", err), f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("closing manifest: %w", err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming manifest: %w", err)
	}
	return nil
}

// Read decodes the manifest at path.
func Read(path string) (*Manifest, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}

// Check re-hashes every shard listed in m, resolving names against dir,
// and reports the first mismatch.
func Check(dir string, m *Manifest) error {
	for _, split := range m.Splits {
		for _, s := range split.Shards {
			sum, size, err := hashFile(filepath.Join(dir, s.File))
			if err != nil {
				return err
			}
			if got := fmt.Sprintf("%016x", sum); got != s.XXHash64 || size != s.Bytes {
				return fmt.Errorf(
					"shard %s changed: have %d bytes hash %s, manifest says %d bytes hash %s",
					s.File, size, got, s.Bytes, s.XXHash64,
				)
			}
		}
	}
	return nil
}
