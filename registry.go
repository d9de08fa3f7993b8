package main

import (
	"iter"
	"maps"
	"slices"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
	"github.com/turbopuffer/tpuf-datagen/pkg/problems"
	"github.com/turbopuffer/tpuf-datagen/pkg/randstate"
)

// A generatorFactory returns a fresh, lazily evaluated example stream.
type generatorFactory func() iter.Seq2[example.Example, error]

// resource is an external input some problems need before they can run.
type resource string

const (
	resourceMSMarcoCorpus resource = "msmarco_corpus"
	resourceEmbeddingsDir resource = "embeddings_dir"
)

type problem struct {
	train    generatorFactory
	dev      generatorFactory
	requires []resource
}

type registryConfig struct {
	tmpDir        string
	msmarcoCorpus string
	embeddingsDir string
	rs            *randstate.State
}

func (c registryConfig) has(r resource) bool {
	switch r {
	case resourceMSMarcoCorpus:
		return c.msmarcoCorpus != ""
	case resourceEmbeddingsDir:
		return c.embeddingsDir != ""
	default:
		return false
	}
}

// Maximum document length, in bytes, for character level corpus problems.
const corpusMaxLength = 2048

// problemRegistry returns every known problem. Factories draw randomness
// from cfg.rs when invoked, not when the registry is built.
func problemRegistry(cfg registryConfig) map[string]problem {
	rng := cfg.rs.Rand
	algorithmic := func(
		gen func(base, maxLength, cases int) iter.Seq2[example.Example, error],
		base int,
	) problem {
		return problem{
			train: func() iter.Seq2[example.Example, error] {
				return gen(base, problems.AlgorithmicTrainLength, problems.AlgorithmicTrainCases)
			},
			dev: func() iter.Seq2[example.Example, error] {
				return gen(base, problems.AlgorithmicDevLength, problems.AlgorithmicDevCases)
			},
		}
	}
	identity := func(base, maxLength, cases int) iter.Seq2[example.Example, error] {
		return problems.Identity(rng(), base, maxLength, cases)
	}
	shift := func(base, maxLength, cases int) iter.Seq2[example.Example, error] {
		return problems.Shift(rng(), base, 1, maxLength, cases)
	}
	reverse := func(base, maxLength, cases int) iter.Seq2[example.Example, error] {
		return problems.Reverse(rng(), base, maxLength, cases)
	}
	addition := func(base, maxLength, cases int) iter.Seq2[example.Example, error] {
		return problems.Addition(rng(), base, maxLength, cases)
	}
	multiplication := func(base, maxLength, cases int) iter.Seq2[example.Example, error] {
		return problems.Multiplication(rng(), base, maxLength, cases)
	}

	return map[string]problem{
		"algorithmic_identity_binary40":        algorithmic(identity, 2),
		"algorithmic_identity_decimal40":       algorithmic(identity, 10),
		"algorithmic_shift_decimal40":          algorithmic(shift, 10),
		"algorithmic_reverse_binary40":         algorithmic(reverse, 2),
		"algorithmic_reverse_decimal40":        algorithmic(reverse, 10),
		"algorithmic_addition_binary40":        algorithmic(addition, 2),
		"algorithmic_addition_decimal40":       algorithmic(addition, 10),
		"algorithmic_multiplication_binary40":  algorithmic(multiplication, 2),
		"algorithmic_multiplication_decimal40": algorithmic(multiplication, 10),
		"synthetic_lognormal_regression": {
			train: func() iter.Seq2[example.Example, error] {
				return problems.LognormalRegression(cfg.rs.NumericSource(), 16, 100_000, 0.1)
			},
			dev: func() iter.Seq2[example.Example, error] {
				return problems.LognormalRegression(cfg.rs.NumericSource(), 16, 10_000, 0.1)
			},
		},
		"msmarco_corpus_characters": {
			train: func() iter.Seq2[example.Example, error] {
				return problems.MSMarcoCharacters(cfg.msmarcoCorpus, cfg.tmpDir, problems.Train, corpusMaxLength)
			},
			dev: func() iter.Seq2[example.Example, error] {
				return problems.MSMarcoCharacters(cfg.msmarcoCorpus, cfg.tmpDir, problems.Dev, corpusMaxLength)
			},
			requires: []resource{resourceMSMarcoCorpus},
		},
		"embeddings_cohere_autoencode": {
			train: func() iter.Seq2[example.Example, error] {
				return problems.CohereEmbeddings(cfg.embeddingsDir, problems.Train)
			},
			dev: func() iter.Seq2[example.Example, error] {
				return problems.CohereEmbeddings(cfg.embeddingsDir, problems.Dev)
			},
			requires: []resource{resourceEmbeddingsDir},
		},
	}
}

// availableProblems drops problems whose required resources are not
// configured.
func availableProblems(all map[string]problem, cfg registryConfig) map[string]problem {
	out := make(map[string]problem, len(all))
	for name, p := range all {
		if !slices.ContainsFunc(p.requires, func(r resource) bool { return !cfg.has(r) }) {
			out[name] = p
		}
	}
	return out
}

func sortedNames(ps map[string]problem) []string {
	return slices.Sorted(maps.Keys(ps))
}
