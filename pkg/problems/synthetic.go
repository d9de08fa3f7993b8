package problems

import (
	"iter"
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/turbopuffer/tpuf-datagen/pkg/example"
)

// LognormalRegression yields dense regression examples. Inputs are drawn
// from a standard normal; the target is exp(w·x/sqrt(dims)) scaled by
// lognormal noise, with w fixed at 1/(i+1).
func LognormalRegression(src exprand.Source, dims, nbrCases int, noiseSigma float64) iter.Seq2[example.Example, error] {
	return func(yield func(example.Example, error) bool) {
		var (
			inputs = distuv.Normal{Mu: 0, Sigma: 1, Src: src}
			noise  = distuv.LogNormal{Mu: 0, Sigma: noiseSigma, Src: src}
			scale  = 1 / math.Sqrt(float64(dims))
		)
		for range nbrCases {
			x := make([]float32, dims)
			var dot float64
			for i := range x {
				v := inputs.Rand()
				x[i] = float32(v)
				dot += v / float64(i+1)
			}
			y := math.Exp(dot*scale) * noise.Rand()
			ex := example.Example{
				"inputs":  example.Floats(x...),
				"targets": example.Floats(float32(y)),
			}
			if !yield(ex, nil) {
				return
			}
		}
	}
}
