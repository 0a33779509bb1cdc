package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func labelled(indices ...int) []Detection {
	out := make([]Detection, len(indices))
	for i, idx := range indices {
		out[i] = Detection{X: float32(i), LabelIndex: idx, Probability: 0.1 * float32(i+1), Width: 1, Height: float32(i + 1)}
	}
	return out
}

// TestFilterByIndex keeps only the included classes in their original order.
func TestFilterByIndex(t *testing.T) {
	in := labelled(0, 1, 2, 1, 0, 1)
	before := append([]Detection(nil), in...)

	out := FilterByIndex(in, []int{1})

	assert.Len(t, out, 3)
	for _, d := range out {
		assert.Equal(t, 1, d.LabelIndex)
	}
	assert.Equal(t, []float32{1, 3, 5}, []float32{out[0].X, out[1].X, out[2].X}, "order preserved")
	assert.Equal(t, before, in, "input not modified")

	assert.Empty(t, FilterByIndex(in, nil))
}

// TestFilterByLabel resolves names through the label list.
func TestFilterByLabel(t *testing.T) {
	in := labelled(0, 1, 2, 7)

	out := FilterByLabel(in, labels3, []string{"car", "person"})
	assert.Equal(t, []int{0, 2}, []int{out[0].LabelIndex, out[1].LabelIndex})
	assert.Len(t, out, 2, "unnamed index 7 is dropped")
}

// TestChain composes filters left to right.
func TestChain(t *testing.T) {
	in := labelled(1, 1, 2, 1)

	f := Chain(NewIndexFilter([]int{1}), NewScoreFilter(0.2), NewAreaFilter(3.5))
	out := f(in)

	assert.Len(t, out, 1)
	assert.Equal(t, float32(3), out[0].X)

	assert.Len(t, NewLabelFilter(labels3, []string{"bicycle"})(in), 3)
}
