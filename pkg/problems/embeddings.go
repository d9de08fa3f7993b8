package problems

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
)

// CohereEmbeddingColumn is the leaf column index of the embedding list in
// the Cohere embedding dataset files (_id, title, text, emb).
const CohereEmbeddingColumn = 3

// CohereEmbeddings yields one autoencoding example per embedding found in
// the *.parquet files of dir, visiting files in name order. Inputs and
// targets are both the embedding vector.
//
// See: https://huggingface.co/datasets/Cohere/msmarco-v2-embed-english-v3
func CohereEmbeddings(dir string, split Split) iter.Seq2[example.Example, error] {
	return func(yield func(example.Example, error) bool) {
		files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
		if err != nil {
			yield(nil, fmt.Errorf("listing parquet files: %w", err))
			return
		}
		if len(files) == 0 {
			yield(nil, fmt.Errorf("%s: %w", dir, errNoParquetFiles))
			return
		}
		slices.Sort(files)

		row := -1
		for _, file := range files {
			vectors, err := readEmbeddingColumn(file, CohereEmbeddingColumn)
			if err != nil {
				yield(nil, fmt.Errorf("reading %s: %w", file, err))
				return
			}
			for _, vec := range vectors {
				row++
				if !split.keeps(row) {
					continue
				}
				ex := example.Example{
					"inputs":  example.Floats(vec...),
					"targets": example.Floats(vec...),
				}
				if !yield(ex, nil) {
					return
				}
			}
		}
	}
}

// readEmbeddingColumn reads a list<float> column and splits it into rows
// using the repetition levels.
func readEmbeddingColumn(path string, column int64) ([][]float32, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet file: %w", err)
	}

	bf := buffer.NewBufferFileFromBytesNoAlloc(contents)
	pr, err := reader.NewParquetColumnReader(bf, 1)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader: %w", err)
	}
	defer pr.ReadStop()

	var numValues int64
	for _, rg := range pr.Footer.RowGroups {
		if int(column) >= len(rg.Columns) {
			return nil, fmt.Errorf("column %d out of range, file has %d columns", column, len(rg.Columns))
		}
		numValues += rg.Columns[column].MetaData.NumValues
	}

	values, rls, _, err := pr.ReadColumnByIndex(column, numValues)
	if err != nil {
		return nil, fmt.Errorf("reading embeddings: %w", err)
	}

	vectors, err := splitRows(values, rls, int(pr.GetNumRows()))
	if err != nil {
		return nil, fmt.Errorf("reading embeddings from %s: %w", path, err)
	}
	return vectors, nil
}

// splitRows groups list values into rows; a repetition level of 0 starts a
// new row.
func splitRows(values []interface{}, rls []int32, numRows int) ([][]float32, error) {
	if len(rls) != len(values) {
		return nil, fmt.Errorf("have %d values but %d repetition levels", len(values), len(rls))
	}
	vectors := make([][]float32, 0, numRows)
	for i, v := range values {
		if rls[i] == 0 {
			vectors = append(vectors, nil)
		} else if len(vectors) == 0 {
			return nil, fmt.Errorf("value %d continues a list but no row has started", i)
		}
		if v == nil {
			continue
		}
		f, ok := v.(float32)
		if !ok {
			return nil, fmt.Errorf("embedding value has type %T, want float32", v)
		}
		last := len(vectors) - 1
		vectors[last] = append(vectors[last], f)
	}
	return vectors, nil
}
