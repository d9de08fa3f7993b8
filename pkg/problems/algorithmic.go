// Package problems holds the example generators behind the registered
// problems. Every generator returns a lazy, single-pass stream; callers
// invoke the constructor again for a fresh stream.
package problems

import (
	"iter"
	"math/rand/v2"
	"slices"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
)

// Reserved ids in integer sequences. Symbols are shifted past them.
const (
	PadID = 0
	EOSID = 1

	numReserved = 2
)

// Algorithmic problem sizes.
const (
	AlgorithmicTrainLength = 40
	AlgorithmicDevLength   = 400
	AlgorithmicTrainCases  = 100_000
	AlgorithmicDevCases    = 10_000
)

func randomSymbols(rng *rand.Rand, base, length int) []int {
	out := make([]int, length)
	for i := range out {
		out[i] = rng.IntN(base) + numReserved
	}
	return out
}

// sequences yields nbrCases examples built by fn from a random symbol
// sequence of length in [1, maxLength].
func sequences(
	rng *rand.Rand,
	base, maxLength, nbrCases int,
	fn func(inputs []int) (targets []int),
) iter.Seq2[example.Example, error] {
	return func(yield func(example.Example, error) bool) {
		for range nbrCases {
			inputs := randomSymbols(rng, base, rng.IntN(maxLength)+1)
			targets := append(fn(inputs), EOSID)
			ex := example.Example{
				"inputs":  example.Ints(inputs...),
				"targets": example.Ints(targets...),
			}
			if !yield(ex, nil) {
				return
			}
		}
	}
}

// Identity yields sequences whose target equals the input.
func Identity(rng *rand.Rand, base, maxLength, nbrCases int) iter.Seq2[example.Example, error] {
	return sequences(rng, base, maxLength, nbrCases, slices.Clone[[]int])
}

// Shift yields sequences whose target adds distance to every symbol,
// modulo base.
func Shift(rng *rand.Rand, base, distance, maxLength, nbrCases int) iter.Seq2[example.Example, error] {
	return sequences(rng, base, maxLength, nbrCases, func(inputs []int) []int {
		out := make([]int, len(inputs))
		for i, s := range inputs {
			out[i] = (s-numReserved+distance)%base + numReserved
		}
		return out
	})
}

// Reverse yields sequences whose target is the reversed input.
func Reverse(rng *rand.Rand, base, maxLength, nbrCases int) iter.Seq2[example.Example, error] {
	return sequences(rng, base, maxLength, nbrCases, func(inputs []int) []int {
		out := slices.Clone(inputs)
		slices.Reverse(out)
		return out
	})
}

// Addition yields pairs of little-endian numbers in the given base. The
// input is n1, a separator symbol (base), n2; the target is n1+n2.
func Addition(rng *rand.Rand, base, maxLength, nbrCases int) iter.Seq2[example.Example, error] {
	return arithmetic(rng, base, maxLength, nbrCases, addDigits)
}

// Multiplication is like Addition but the target is n1*n2.
func Multiplication(rng *rand.Rand, base, maxLength, nbrCases int) iter.Seq2[example.Example, error] {
	return arithmetic(rng, base, maxLength, nbrCases, mulDigits)
}

func arithmetic(
	rng *rand.Rand,
	base, maxLength, nbrCases int,
	op func(a, b []int, base int) []int,
) iter.Seq2[example.Example, error] {
	return func(yield func(example.Example, error) bool) {
		if maxLength < 3 {
			yield(nil, errShortArithmetic)
			return
		}
		for range nbrCases {
			l1 := rng.IntN(maxLength/2) + 1
			l2 := rng.IntN(maxLength-l1-1) + 1
			n1 := randomDigits(rng, base, l1)
			n2 := randomDigits(rng, base, l2)

			inputs := make([]int, 0, l1+l2+1)
			inputs = append(inputs, shiftDigits(n1)...)
			inputs = append(inputs, base+numReserved)
			inputs = append(inputs, shiftDigits(n2)...)
			targets := append(shiftDigits(op(n1, n2, base)), EOSID)

			ex := example.Example{
				"inputs":  example.Ints(inputs...),
				"targets": example.Ints(targets...),
			}
			if !yield(ex, nil) {
				return
			}
		}
	}
}

func randomDigits(rng *rand.Rand, base, length int) []int {
	out := make([]int, length)
	for i := range out {
		out[i] = rng.IntN(base)
	}
	return out
}

func shiftDigits(digits []int) []int {
	out := make([]int, len(digits))
	for i, d := range digits {
		out[i] = d + numReserved
	}
	return out
}

// addDigits adds two little-endian digit slices.
func addDigits(a, b []int, base int) []int {
	out := make([]int, 0, max(len(a), len(b))+1)
	carry := 0
	for i := 0; i < len(a) || i < len(b) || carry > 0; i++ {
		sum := carry
		if i < len(a) {
			sum += a[i]
		}
		if i < len(b) {
			sum += b[i]
		}
		out = append(out, sum%base)
		carry = sum / base
	}
	return trimZeros(out)
}

// mulDigits multiplies two little-endian digit slices.
func mulDigits(a, b []int, base int) []int {
	out := make([]int, len(a)+len(b))
	for i, x := range a {
		carry := 0
		for j, y := range b {
			cur := out[i+j] + x*y + carry
			out[i+j] = cur % base
			carry = cur / base
		}
		for k := i + len(b); carry > 0; k++ {
			cur := out[k] + carry
			out[k] = cur % base
			carry = cur / base
		}
	}
	return trimZeros(out)
}

// trimZeros drops high-order zero digits, keeping at least one digit.
func trimZeros(digits []int) []int {
	n := len(digits)
	for n > 1 && digits[n-1] == 0 {
		n--
	}
	return digits[:n]
}
