package problems

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
)

// DevEvery routes every DevEvery'th corpus row to the dev split and the
// rest to train.
const DevEvery = 100

// Split selects which rows of a corpus a generator yields.
type Split int

const (
	Train Split = iota
	Dev
)

func (s Split) keeps(row int) bool {
	if s == Dev {
		return row%DevEvery == 0
	}
	return row%DevEvery != 0
}

// MSMarcoCharacters yields one example per document of a BeIR MS MARCO
// corpus.jsonl (optionally gzipped). Targets are the document bytes shifted
// past the reserved ids, followed by EOS; documents longer than maxLength
// bytes are truncated. Gzipped corpora are decompressed once into tmpDir.
func MSMarcoCharacters(corpusPath, tmpDir string, split Split, maxLength int) iter.Seq2[example.Example, error] {
	return func(yield func(example.Example, error) bool) {
		path, err := decompressedPath(corpusPath, tmpDir)
		if err != nil {
			yield(nil, err)
			return
		}
		f, err := os.Open(path)
		if err != nil {
			yield(nil, fmt.Errorf("opening corpus file: %w", err))
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		row := -1
		for scanner.Scan() {
			row++
			if !split.keeps(row) {
				continue
			}
			var doc struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
				yield(nil, fmt.Errorf("decoding corpus row %d: %w", row, err))
				return
			}
			text := doc.Text
			if maxLength > 0 && len(text) > maxLength {
				text = text[:maxLength]
			}
			targets := make([]int, 0, len(text)+1)
			for i := 0; i < len(text); i++ {
				targets = append(targets, int(text[i])+numReserved)
			}
			targets = append(targets, EOSID)
			if !yield(example.Example{"targets": example.Ints(targets...)}, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("scanning corpus: %w", err))
		}
	}
}

// decompressedPath returns a path to the uncompressed corpus, inflating a
// .gz file into tmpDir on first use. The cache entry is keyed on the source
// file's absolute path, size and modification time.
func decompressedPath(path, tmpDir string) (string, error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, nil
	}
	key, err := cacheKey(path)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(tmpDir, "datagen", key, strings.TrimSuffix(filepath.Base(path), ".gz"))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening compressed corpus: %w", err)
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return "", fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	// dst only appears once fully inflated.
	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := io.Copy(f, gz); err != nil {
		f.Close()
		return "", fmt.Errorf("writing cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("renaming cache file: %w", err)
	}
	return dst, nil
}

func cacheKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving corpus path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("opening compressed corpus: %w", err)
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d", abs, info.Size(), info.ModTime().UnixNano())
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
