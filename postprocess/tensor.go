package postprocess

// Tensor wraps the raw output of the detection model, a row major [N, 5+C]
// matrix of float32 where N is the number of candidate boxes and each row
// holds 4 box parameters (center x, center y, width, height in model input
// space), 1 objectness score and C per class scores.
type Tensor struct {
	Data []float32
	// Cols is the row stride, 5 plus the number of model classes
	Cols int
}

// NewTensor wraps the given raw buffer.  Cols is the full row length
// including the 5 box attributes.
func NewTensor(data []float32, cols int) Tensor {
	return Tensor{Data: data, Cols: cols}
}

// Rows returns the number of candidate boxes in the tensor
func (t Tensor) Rows() int {

	if t.Cols <= 0 {
		return 0
	}

	return len(t.Data) / t.Cols
}

// Valid reports whether the tensor has a usable shape, ie: at least one
// class column and a buffer length that is a multiple of the row stride.
// A zero row tensor is valid and simply yields no candidates.
func (t Tensor) Valid() bool {

	if t.Cols < 6 {
		return false
	}

	return len(t.Data)%t.Cols == 0
}

// Row returns the i'th candidate row
func (t Tensor) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}
