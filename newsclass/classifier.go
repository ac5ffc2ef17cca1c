package newsclass

import (
	"io"
	"math"
)

// SequenceClassifier scores rows of token ids. Every row has the same length
// and the result holds one slice of NumClasses unnormalized logits per row.
type SequenceClassifier interface {
	Scores(texts [][]int) ([][]float32, error)
	NumClasses() int
}

// TrainableClassifier is a classifier the trainer can optimize and checkpoint.
// TrainBatch performs one optimizer step with per-class loss weights (indexed by
// label id) and returns the weighted mean cross-entropy of the batch.
type TrainableClassifier interface {
	SequenceClassifier
	TrainBatch(b Batch, classWeights []float64) (float64, error)
	Checkpoint(w io.Writer) error
	Restore(r io.Reader) error
}

// Softmax converts logits to probabilities.
func Softmax(scores []float32) []float32 {
	if len(scores) == 0 {
		return nil
	}
	max := scores[0]
	for _, v := range scores[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	out := make([]float32, len(scores))
	for i, v := range scores {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Argmax returns the index of the largest score, or -1 for an empty slice.
func Argmax(scores []float32) int {
	best := -1
	var bestScore float32
	for i, v := range scores {
		if best < 0 || v > bestScore {
			best = i
			bestScore = v
		}
	}
	return best
}

// weightedCrossEntropy returns the summed weighted negative log-likelihood of a
// batch and the summed weights, matching a sum-reduced weighted cross-entropy.
func weightedCrossEntropy(scores [][]float32, labels []int, weights []float64) (lossSum, weightSum float64) {
	for i, row := range scores {
		label := labels[i]
		w := 1.0
		if weights != nil {
			w = weights[label]
		}
		p := float64(Softmax(row)[label])
		lossSum += -w * math.Log(math.Max(p, 1e-12))
		weightSum += w
	}
	return lossSum, weightSum
}
