package shard

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
	"github.com/turbopuffer/tpuf-datagen/pkg/randstate"
	"github.com/turbopuffer/tpuf-datagen/pkg/tfrecord"
)

// numbered yields n examples whose "id" feature is their stream index.
// pulled, when non-nil, counts how many examples the consumer requested.
func numbered(n int, pulled *int) iter.Seq2[example.Example, error] {
	return func(yield func(example.Example, error) bool) {
		for i := range n {
			if pulled != nil {
				*pulled++
			}
			ex := example.Example{
				"id":   example.Ints(i),
				"text": example.Strings("example"),
			}
			if !yield(ex, nil) {
				return
			}
		}
	}
}

func readIDs(t *testing.T, path string) []int64 {
	t.Helper()
	records, err := tfrecord.ReadFile(path)
	require.NoError(t, err)
	ids := make([]int64, len(records))
	for i, rec := range records {
		ex, err := example.Unmarshal(rec)
		require.NoError(t, err)
		ids[i] = ex["id"].Int64s()[0]
	}
	return ids
}

func generate(t *testing.T, dir string, src iter.Seq2[example.Example, error], shards, maxCases int) *GenerateResult {
	t.Helper()
	res, err := Generate(context.Background(), src, GenerateConfig{
		Dir:       dir,
		Problem:   "test_problem",
		Split:     SplitTrain,
		NumShards: shards,
		MaxCases:  maxCases,
		Progress:  io.Discard,
	})
	require.NoError(t, err)
	return res
}

func TestFileNames(t *testing.T) {
	got := FileNames("/data", "algorithmic_identity_binary40", SplitTrain, 2, true)
	require.Equal(t, []string{
		"/data/algorithmic_identity_binary40-unshuffled-train-00000-of-00002",
		"/data/algorithmic_identity_binary40-unshuffled-train-00001-of-00002",
	}, got)

	got = FileNames("/data", "p", SplitDev, 1, false)
	require.Equal(t, []string{"/data/p-dev-00000-of-00001"}, got)
}

func TestShuffledName(t *testing.T) {
	got, err := ShuffledName("/data/p-unshuffled-dev-00000-of-00001")
	require.NoError(t, err)
	require.Equal(t, "/data/p-dev-00000-of-00001", got)

	// A marker-like directory name must not be touched.
	got, err = ShuffledName("/x-unshuffled/p-unshuffled-train-00003-of-00010")
	require.NoError(t, err)
	require.Equal(t, "/x-unshuffled/p-train-00003-of-00010", got)

	_, err = ShuffledName("/data/p-train-00000-of-00001")
	require.ErrorIs(t, err, ErrNoMarker)
}

func TestRoute(t *testing.T) {
	dir := t.TempDir()
	alloc, err := NewAllocator(FileNames(dir, "p", SplitTrain, 3, true))
	require.NoError(t, err)
	for i, want := range []int{0, 1, 2, 0, 1, 2, 0} {
		require.Equal(t, want, alloc.Route(int64(i)))
	}
	_, err = alloc.Close()
	require.NoError(t, err)
}

func TestNewAllocatorNoShards(t *testing.T) {
	_, err := NewAllocator(nil)
	require.Error(t, err)
}

func TestGenerateShardCounts(t *testing.T) {
	for _, tc := range []struct {
		length, shards, maxCases int
	}{
		{0, 1, 0},
		{1, 1, 0},
		{7, 3, 0},
		{3, 5, 0},
		{100, 7, 0},
		{100, 7, 10},
		{100, 7, 100},
		{100, 7, 500},
	} {
		dir := t.TempDir()
		res := generate(t, dir, numbered(tc.length, nil), tc.shards, tc.maxCases)

		want := tc.length
		if tc.maxCases > 0 {
			want = min(tc.length, tc.maxCases)
		}
		require.Len(t, res.Files, tc.shards)
		require.EqualValues(t, want, res.Total)

		var sum int64
		for s, f := range res.Files {
			ids := readIDs(t, f)
			var expect []int64
			for j := s; j < want; j += tc.shards {
				expect = append(expect, int64(j))
			}
			require.Equal(t, len(expect), len(ids), "shard %d", s)
			if len(expect) > 0 {
				require.Equal(t, expect, ids, "shard %d", s)
			}
			require.EqualValues(t, len(ids), res.Counts[s])
			sum += res.Counts[s]
		}
		require.EqualValues(t, want, sum)
	}
}

func TestGenerateMaxCasesStopsPulling(t *testing.T) {
	var pulled int
	res := generate(t, t.TempDir(), numbered(50, &pulled), 4, 10)
	require.EqualValues(t, 10, res.Total)
	require.Equal(t, 10, pulled)

	pulled = 0
	res = generate(t, t.TempDir(), numbered(50, &pulled), 4, 0)
	require.EqualValues(t, 50, res.Total)
	require.Equal(t, 50, pulled)
}

func TestGenerateTwentyFiveIntoTen(t *testing.T) {
	dir := t.TempDir()
	res := generate(t, dir, numbered(25, nil), 10, 0)
	require.Equal(t, []int64{3, 3, 3, 3, 3, 2, 2, 2, 2, 2}, res.Counts)

	rs := randstate.New(429459)
	before := make(map[int64]bool)
	for _, f := range res.Files {
		for _, id := range readIDs(t, f) {
			before[id] = true
		}
	}

	shuffled, err := ShuffleAll(res.Files, rs, io.Discard)
	require.NoError(t, err)
	require.Equal(t, FileNames(dir, "test_problem", SplitTrain, 10, false), shuffled)

	after := make(map[int64]bool)
	for i, f := range shuffled {
		ids := readIDs(t, f)
		require.Len(t, ids, int(res.Counts[i]))
		for _, id := range ids {
			after[id] = true
		}
	}
	require.Equal(t, before, after)
	require.Len(t, after, 25)

	for _, f := range res.Files {
		_, err := os.Stat(f)
		require.ErrorIs(t, err, os.ErrNotExist)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 10)
}

func TestShufflePreservesMultiset(t *testing.T) {
	dir := t.TempDir()
	res := generate(t, dir, numbered(500, nil), 1, 0)
	require.Equal(t, []string{filepath.Join(dir, "test_problem-unshuffled-train-00000-of-00001")}, res.Files)

	dst, err := Shuffle(res.Files[0], randstate.New(1))
	require.NoError(t, err)

	ids := readIDs(t, dst)
	require.Len(t, ids, 500)
	require.False(t, slices.IsSorted(ids), "shuffle left records in order")
	slices.Sort(ids)
	for i, id := range ids {
		require.EqualValues(t, i, id)
	}
}

func TestReseedIsReproducible(t *testing.T) {
	run := func() (unshuffled, shuffled [][]byte) {
		dir := t.TempDir()
		rs := randstate.New(99)
		res := generate(t, dir, numbered(200, nil), 3, 0)
		for _, f := range res.Files {
			b, err := os.ReadFile(f)
			require.NoError(t, err)
			unshuffled = append(unshuffled, b)
		}
		out, err := ShuffleAll(res.Files, rs, nil)
		require.NoError(t, err)
		for _, f := range out {
			b, err := os.ReadFile(f)
			require.NoError(t, err)
			shuffled = append(shuffled, b)
		}
		return unshuffled, shuffled
	}
	u1, s1 := run()
	u2, s2 := run()
	require.Equal(t, u1, u2)
	require.Equal(t, s1, s2)
	require.NotEqual(t, u1, s1)
}

func TestGenerateSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := func(yield func(example.Example, error) bool) {
		for i := range 5 {
			if !yield(example.Example{"id": example.Ints(i)}, nil) {
				return
			}
		}
		yield(nil, boom)
	}
	dir := t.TempDir()
	_, err := Generate(context.Background(), src, GenerateConfig{
		Dir: dir, Problem: "p", Split: SplitTrain, NumShards: 2,
	})
	require.ErrorIs(t, err, boom)

	// Partial shards stay on disk.
	files := FileNames(dir, "p", SplitTrain, 2, true)
	require.Equal(t, []int64{0, 2, 4}, readIDs(t, files[0]))
	require.Equal(t, []int64{1, 3}, readIDs(t, files[1]))
}

func TestGenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var pulled int
	_, err := Generate(ctx, numbered(10, &pulled), GenerateConfig{
		Dir: t.TempDir(), Problem: "p", Split: SplitTrain, NumShards: 2,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, pulled)
}

func TestGenerateInvalidConfig(t *testing.T) {
	for _, cfg := range []GenerateConfig{
		{Dir: t.TempDir(), Split: SplitTrain, NumShards: 1},
		{Dir: t.TempDir(), Problem: "p", NumShards: 1},
		{Dir: t.TempDir(), Problem: "p", Split: SplitTrain, NumShards: 0},
		{Dir: t.TempDir(), Problem: "p", Split: SplitTrain, NumShards: 1, MaxCases: -1},
	} {
		_, err := Generate(context.Background(), numbered(1, nil), cfg)
		require.Error(t, err)
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	res := generate(t, dir, numbered(11, nil), 4, 0)

	counts, err := CountRecords(context.Background(), res.Files)
	require.NoError(t, err)
	require.Equal(t, res.Counts, counts)
	require.NoError(t, Verify(context.Background(), res.Files, res.Counts))

	wrong := slices.Clone(res.Counts)
	wrong[0]++
	require.Error(t, Verify(context.Background(), res.Files, wrong))
	require.Error(t, Verify(context.Background(), res.Files, wrong[:1]))

	require.NoError(t, os.WriteFile(res.Files[1], []byte("garbage"), 0o644))
	_, err = CountRecords(context.Background(), res.Files)
	require.Error(t, err)
}
