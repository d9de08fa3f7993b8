package main

import (
	"flag"
	"os"
)

var dataDir = flag.String(
	"data_dir",
	"",
	"the directory to write shard files to. defaults to the system temp directory",
)

var tmpDir = flag.String(
	"tmp_dir",
	os.TempDir(),
	"scratch space for generators, e.g. decompressed corpora",
)

var problemSelector = flag.String(
	"problem",
	"",
	"the problem to generate data for. a trailing * matches every problem with that prefix",
)

var numShards = flag.Int(
	"num_shards",
	10,
	"the number of training shards to write. dev data is always written to a single shard",
)

var maxCases = flag.Int(
	"max_cases",
	0,
	"the maximum number of examples to generate per split. 0 means no limit",
)

var randomSeed = flag.Uint64(
	"random_seed",
	429459,
	"the seed for all randomness, re-applied before each problem",
)

var msmarcoCorpus = flag.String(
	"msmarco_corpus",
	"",
	"path to a BeIR MS MARCO corpus.jsonl or corpus.jsonl.gz. enables the msmarco_* problems",
)

var embeddingsDir = flag.String(
	"embeddings_dir",
	"",
	"directory of Cohere embedding *.parquet files. enables the embeddings_* problems",
)

var verifyShards = flag.Bool(
	"verify",
	true,
	"re-read every final shard and check its record count",
)

var writeManifest = flag.Bool(
	"manifest",
	true,
	"write a <problem>-manifest.yaml next to the shards",
)

var ledgerDriver = flag.String(
	"ledger_driver",
	"mysql",
	"the database driver for the run ledger (mysql or sqlite)",
)

var ledgerDSN = flag.String(
	"ledger_dsn",
	"",
	"the DSN of a database to record generated splits in (optional)",
)

var listProblems = flag.Bool(
	"list",
	false,
	"print the available problems and exit",
)

var showProgress = flag.Bool(
	"progress",
	true,
	"draw progress bars on stderr",
)
