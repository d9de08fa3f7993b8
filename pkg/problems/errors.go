package problems

import "errors"

var (
	errShortArithmetic = errors.New("arithmetic problems need a max length of at least 3")
	errNoParquetFiles  = errors.New("no parquet files found")
)
