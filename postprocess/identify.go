package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Identify returns the output vector of one batch entry, for networks used as
// identifiers (embeddings or plain classifiers) rather than detectors.
//
// Arguments:
//   - raw: The predictor output for the whole batch.
//   - batch: The number of batch entries in raw.
//   - batchIdx: The entry to return.
//
// Returns:
//   - []float32: A copy of the entry's len(raw)/batch values.
//   - error: ErrBatchIndex or ErrOutputSize.
func Identify(raw []float32, batch, batchIdx int) ([]float32, error) {
	out, err := identityView(raw, batch, batchIdx)
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), out...), nil
}

// CopyIdentity copies the output vector of one batch entry into dst.
//
// Returns:
//   - int: The number of values copied.
//   - error: ErrBatchIndex, ErrOutputSize, or ErrBufferTooSmall when dst cannot hold the vector.
func CopyIdentity(dst, raw []float32, batch, batchIdx int) (int, error) {
	out, err := identityView(raw, batch, batchIdx)
	if err != nil {
		return 0, err
	}
	if len(dst) < len(out) {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d, have %d", len(out), len(dst))
	}
	return copy(dst, out), nil
}

// identityView slices raw as a batch x outputs matrix and returns row batchIdx.
func identityView(raw []float32, batch, batchIdx int) ([]float32, error) {
	if batch <= 0 || batchIdx < 0 || batchIdx >= batch {
		return nil, errors.Wrapf(ErrBatchIndex, "index %d with %d entries", batchIdx, batch)
	}
	outputs := len(raw) / batch
	if outputs == 0 {
		return nil, errors.Wrapf(ErrOutputSize, "%d values for %d entries", len(raw), batch)
	}
	t := tensor.New(tensor.WithShape(batch, outputs), tensor.WithBacking(raw[:batch*outputs]))
	row, err := t.Slice(tensor.S(batchIdx))
	if err != nil {
		return nil, errors.Wrap(err, "slicing output")
	}
	var data []float32
	switch v := row.Data().(type) {
	case []float32:
		data = v
	case float32:
		// One value per entry slices down to a scalar view.
		data = []float32{v}
	}
	if len(data) != outputs {
		return nil, errors.Wrapf(ErrOutputSize, "row %d has %d values, want %d", batchIdx, len(data), outputs)
	}
	return data, nil
}
