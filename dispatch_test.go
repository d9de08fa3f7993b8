package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
	"github.com/turbopuffer/tpuf-datagen/pkg/ledger"
	"github.com/turbopuffer/tpuf-datagen/pkg/manifest"
	"github.com/turbopuffer/tpuf-datagen/pkg/randstate"
	"github.com/turbopuffer/tpuf-datagen/pkg/tfrecord"
)

func fakeProblems(names ...string) map[string]problem {
	ps := make(map[string]problem, len(names))
	for _, name := range names {
		ps[name] = problem{}
	}
	return ps
}

func TestResolveProblems(t *testing.T) {
	available := fakeProblems(
		"algorithmic_reverse_binary40",
		"algorithmic_identity_binary40",
		"synthetic_lognormal_regression",
	)

	for _, tc := range []struct {
		name     string
		selector string
		want     []string
	}{
		{"exact", "synthetic_lognormal_regression", []string{"synthetic_lognormal_regression"}},
		{"wildcard", "algorithmic_*", []string{"algorithmic_identity_binary40", "algorithmic_reverse_binary40"}},
		{"bare wildcard", "*", []string{
			"algorithmic_identity_binary40",
			"algorithmic_reverse_binary40",
			"synthetic_lognormal_regression",
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveProblems(tc.selector, available)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveProblemsErrors(t *testing.T) {
	available := fakeProblems("algorithmic_identity_binary40", "algorithmic_reverse_binary40")

	for _, selector := range []string{"", "nonexistent", "msmarco_*", "algorithmic_identity"} {
		t.Run(selector, func(t *testing.T) {
			_, err := resolveProblems(selector, available)
			var ce *configError
			require.True(t, errors.As(err, &ce))
			require.True(t, isConfigError(err))
			require.Equal(t, []string{"algorithmic_identity_binary40", "algorithmic_reverse_binary40"}, ce.available)
			require.Contains(t, err.Error(), "available problems:\n  algorithmic_identity_binary40\n  algorithmic_reverse_binary40")
		})
	}
}

func TestAvailableProblems(t *testing.T) {
	cfg := registryConfig{rs: randstate.New(1)}
	all := problemRegistry(cfg)
	require.Contains(t, all, "msmarco_corpus_characters")
	require.Contains(t, all, "embeddings_cohere_autoencode")

	available := availableProblems(all, cfg)
	require.Len(t, available, len(all)-2)
	require.NotContains(t, available, "msmarco_corpus_characters")
	require.NotContains(t, available, "embeddings_cohere_autoencode")

	cfg.msmarcoCorpus = "/data/corpus.jsonl.gz"
	available = availableProblems(all, cfg)
	require.Contains(t, available, "msmarco_corpus_characters")
	require.NotContains(t, available, "embeddings_cohere_autoencode")
}

func TestCheckResources(t *testing.T) {
	cfg := registryConfig{rs: randstate.New(1)}
	all := problemRegistry(cfg)

	require.NoError(t, checkResources("algorithmic_identity_binary40", all, cfg))
	require.NoError(t, checkResources("algorithmic_*", all, cfg))

	err := checkResources("embeddings_cohere_autoencode", all, cfg)
	require.True(t, isConfigError(err))
	require.Contains(t, err.Error(), `problem "embeddings_cohere_autoencode" requires -embeddings_dir`)
	require.NotContains(t, err.Error(), "\n  embeddings_cohere_autoencode")
}

// randomProblem yields n examples drawn from rs, so its output depends on
// the state of rs when the factory is invoked.
func randomProblem(rs *randstate.State, n int) problem {
	factory := func() iter.Seq2[example.Example, error] {
		return func(yield func(example.Example, error) bool) {
			rng := rs.Rand()
			for i := range n {
				ex := example.Example{
					"index": example.Ints(i),
					"value": example.Int64s(rng.Int64N(1 << 40)),
				}
				if !yield(ex, nil) {
					return
				}
			}
		}
	}
	return problem{train: factory, dev: factory}
}

func newTestDispatcher(t *testing.T, problems map[string]problem, rs *randstate.State) *dispatcher {
	t.Helper()
	return &dispatcher{
		problems:  problems,
		rs:        rs,
		dataDir:   t.TempDir(),
		numShards: 3,
		verify:    true,
		manifest:  true,
		now:       func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) },
	}
}

func TestDispatcherRun(t *testing.T) {
	ctx := context.Background()
	rs := randstate.New(429459)
	d := newTestDispatcher(t, map[string]problem{
		"toy_a": randomProblem(rs, 30),
		"toy_b": randomProblem(rs, 30),
	}, rs)

	l, err := ledger.Open(ctx, ledger.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()
	d.ledger = l

	results, err := d.run(ctx, slog.New(slog.DiscardHandler), []string{"toy_a", "toy_b"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	train, dev := results[0].splits[0], results[0].splits[1]
	require.Equal(t, "train", train.split)
	require.Equal(t, []int64{10, 10, 10}, train.counts)
	require.Equal(t, []string{
		filepath.Join(d.dataDir, "toy_a-train-00000-of-00003"),
		filepath.Join(d.dataDir, "toy_a-train-00001-of-00003"),
		filepath.Join(d.dataDir, "toy_a-train-00002-of-00003"),
	}, train.files)
	require.Equal(t, "dev", dev.split)
	require.Equal(t, []int64{30}, dev.counts)
	require.Equal(t, []string{filepath.Join(d.dataDir, "toy_a-dev-00000-of-00001")}, dev.files)

	entries, err := os.ReadDir(d.dataDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), "-unshuffled")
	}

	m, err := manifest.Read(manifest.FileName(d.dataDir, "toy_a"))
	require.NoError(t, err)
	require.Equal(t, uint64(429459), m.Seed)
	require.Len(t, m.Splits, 2)
	require.Equal(t, int64(30), m.Splits[0].Examples)
	require.NoError(t, manifest.Check(d.dataDir, m))

	history, err := l.History(ctx, "toy_b")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, e := range history {
		require.Equal(t, l.RunID(), e.RunID)
		require.Equal(t, int64(30), e.Examples)
	}
}

func TestDispatcherReseedsEachProblem(t *testing.T) {
	rs := randstate.New(7)
	d := newTestDispatcher(t, map[string]problem{
		"toy_a": randomProblem(rs, 40),
		"toy_b": randomProblem(rs, 40),
	}, rs)
	d.manifest = false

	_, err := d.run(context.Background(), slog.New(slog.DiscardHandler), []string{"toy_a", "toy_b"})
	require.NoError(t, err)

	for _, suffix := range []string{"-train-00000-of-00003", "-train-00002-of-00003", "-dev-00000-of-00001"} {
		a, err := os.ReadFile(filepath.Join(d.dataDir, "toy_a"+suffix))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(d.dataDir, "toy_b"+suffix))
		require.NoError(t, err)
		require.True(t, bytes.Equal(a, b), "toy_a%s differs from toy_b%s", suffix, suffix)
	}
}

func TestDispatcherRegisteredProblem(t *testing.T) {
	cfg := registryConfig{rs: randstate.New(429459)}
	d := newTestDispatcher(t, availableProblems(problemRegistry(cfg), cfg), cfg.rs)
	d.numShards = 10
	d.maxCases = 25

	results, err := d.run(context.Background(), slog.New(slog.DiscardHandler), []string{"algorithmic_reverse_binary40"})
	require.NoError(t, err)
	require.Equal(t, []int64{3, 3, 3, 3, 3, 2, 2, 2, 2, 2}, results[0].splits[0].counts)
	require.Equal(t, []int64{25}, results[0].splits[1].counts)

	records, err := tfrecord.ReadFile(results[0].splits[1].files[0])
	require.NoError(t, err)
	require.Len(t, records, 25)
	for _, rec := range records {
		ex, err := example.Unmarshal(rec)
		require.NoError(t, err)
		inputs, targets := ex["inputs"].Int64s(), ex["targets"].Int64s()
		require.Len(t, targets, len(inputs)+1)
		require.Equal(t, int64(1), targets[len(inputs)])
		for i, v := range inputs {
			require.Equal(t, v, targets[len(inputs)-1-i])
		}
	}
}

func TestDispatcherStopsOnGeneratorError(t *testing.T) {
	rs := randstate.New(1)
	boom := errors.New("boom")
	failing := func() iter.Seq2[example.Example, error] {
		return func(yield func(example.Example, error) bool) {
			yield(nil, boom)
		}
	}
	d := newTestDispatcher(t, map[string]problem{
		"toy_a": {train: failing, dev: failing},
		"toy_b": randomProblem(rs, 5),
	}, rs)

	results, err := d.run(context.Background(), slog.New(slog.DiscardHandler), []string{"toy_a", "toy_b"})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "problem toy_a")
	require.Empty(t, results)

	_, err = os.Stat(filepath.Join(d.dataDir, "toy_b-dev-00000-of-00001"))
	require.True(t, os.IsNotExist(err))
}

func TestDescribeResult(t *testing.T) {
	out := describeResult(&problemResult{
		name: "toy",
		splits: []splitResult{
			{split: "train", files: []string{"a", "b", "c"}, counts: []int64{4, 3, 3}, duration: time.Second},
			{split: "dev", files: []string{"d"}, counts: []int64{10}},
		},
	})
	require.Contains(t, out, "toy:\n")
	require.Contains(t, out, "train: 10 examples in 3 shards (1s)")
	require.Contains(t, out, "- max shard: 4")
	require.Contains(t, out, "dev: 10 examples in 1 shards")
	require.Equal(t, 1, strings.Count(out, "- min shard"))
}
