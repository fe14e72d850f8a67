package dense

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/trane-ml/trane/internal/parallel"
)

// loopCfg governs the elementwise and gather kernels. Small arrays stay
// sequential; large unfoldings fan out across cores.
var loopCfg = parallel.DefaultConfig()

// Device represents the placement of an array's storage.
type Device int

// Supported placements. Only CPU has a compute implementation; the constant
// exists so placement can travel with the data as an explicit attribute.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// Dense is a row-major multi-dimensional float64 array.
//
// Every operation returns a freshly allocated result; no two Dense values
// share storage. This keeps ownership trivial for callers that hold long
// chains of derived arrays.
type Dense struct {
	data   []float64
	shape  Shape
	stride []int
	device Device
}

// New creates a zero-initialized array with the given shape.
func New(shape Shape, device Device) (*Dense, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid shape")
	}
	return &Dense{
		data:   make([]float64, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		device: device,
	}, nil
}

// FromSlice creates an array from a Go slice. The slice is copied.
func FromSlice(data []float64, shape Shape, device Device) (*Dense, error) {
	if shape.NumElements() != len(data) {
		return nil, errors.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	d, err := New(shape, device)
	if err != nil {
		return nil, err
	}
	copy(d.data, data)
	return d, nil
}

// Shape returns the array's shape.
func (d *Dense) Shape() Shape {
	return d.shape
}

// Strides returns the array's memory strides.
func (d *Dense) Strides() []int {
	return d.stride
}

// Device returns the array's placement.
func (d *Dense) Device() Device {
	return d.device
}

// NumElements returns the total number of elements.
func (d *Dense) NumElements() int {
	return d.shape.NumElements()
}

// Data returns the underlying storage.
// Modifications to the returned slice modify the array.
func (d *Dense) Data() []float64 {
	return d.data
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (d *Dense) At(indices ...int) float64 {
	return d.data[d.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (d *Dense) Set(value float64, indices ...int) {
	d.data[d.offset(indices)] = value
}

func (d *Dense) offset(indices []int) int {
	if len(indices) != len(d.shape) {
		panic(errors.Errorf("expected %d indices, got %d", len(d.shape), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= d.shape[i] {
			panic(errors.Errorf("index %d out of bounds for dimension %d (size %d)", idx, i, d.shape[i]))
		}
		offset += idx * d.stride[i]
	}
	return offset
}

// Clone creates a deep copy of the array.
func (d *Dense) Clone() *Dense {
	out := &Dense{
		data:   make([]float64, len(d.data)),
		shape:  d.shape.Clone(),
		stride: append([]int(nil), d.stride...),
		device: d.device,
	}
	copy(out.data, d.data)
	return out
}

// To returns a copy of the array placed on the given device.
// Storage is always reconstructed, never shared.
func (d *Dense) To(device Device) *Dense {
	out := d.Clone()
	out.device = device
	return out
}

// Reshape returns a copy of the array with a new shape.
// The element count must be preserved.
func (d *Dense) Reshape(shape Shape) (*Dense, error) {
	if shape.NumElements() != d.NumElements() {
		return nil, errors.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			d.shape, d.NumElements(), shape, shape.NumElements())
	}
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid shape")
	}
	out := d.Clone()
	out.shape = shape.Clone()
	out.stride = shape.ComputeStrides()
	return out, nil
}

// MustReshape is Reshape for shapes already known to be compatible.
// Panics on element count mismatch.
func (d *Dense) MustReshape(shape Shape) *Dense {
	out, err := d.Reshape(shape)
	if err != nil {
		panic(err)
	}
	return out
}

// Permute returns a copy of the array with its axes reordered.
// axes must be a permutation of 0..len(shape)-1.
func (d *Dense) Permute(axes ...int) (*Dense, error) {
	if len(axes) != len(d.shape) {
		return nil, errors.Errorf("permute needs %d axes, got %d", len(d.shape), len(axes))
	}
	seen := make([]bool, len(axes))
	newShape := make(Shape, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return nil, errors.Errorf("invalid axis permutation %v", axes)
		}
		seen[a] = true
		newShape[i] = d.shape[a]
	}

	out, err := New(newShape, d.device)
	if err != nil {
		return nil, err
	}
	oldStride := d.stride
	parallel.For(len(out.data), func(flat int) {
		// Decompose flat into the permuted coordinates, then map back.
		rem := flat
		src := 0
		for i := range out.stride {
			src += (rem / out.stride[i]) * oldStride[axes[i]]
			rem %= out.stride[i]
		}
		out.data[flat] = d.data[src]
	}, loopCfg)
	return out, nil
}

// Add returns the elementwise sum of two arrays of equal shape.
func (d *Dense) Add(other *Dense) (*Dense, error) {
	if !d.shape.Equal(other.shape) {
		return nil, errors.Errorf("shape mismatch: %v vs %v", d.shape, other.shape)
	}
	out := d.Clone()
	parallel.For(len(out.data), func(i int) {
		out.data[i] += other.data[i]
	}, loopCfg)
	return out, nil
}

// Sub returns the elementwise difference of two arrays of equal shape.
func (d *Dense) Sub(other *Dense) (*Dense, error) {
	if !d.shape.Equal(other.shape) {
		return nil, errors.Errorf("shape mismatch: %v vs %v", d.shape, other.shape)
	}
	out := d.Clone()
	parallel.For(len(out.data), func(i int) {
		out.data[i] -= other.data[i]
	}, loopCfg)
	return out, nil
}

// Scale returns the array multiplied by a scalar.
func (d *Dense) Scale(s float64) *Dense {
	out := d.Clone()
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Norm returns the Frobenius norm of the array.
func (d *Dense) Norm() float64 {
	// Scaled accumulation avoids overflow for large magnitudes.
	var scale, ssq float64 = 0, 1
	for _, v := range d.data {
		if v == 0 {
			continue
		}
		av := math.Abs(v)
		if scale < av {
			ssq = 1 + ssq*(scale/av)*(scale/av)
			scale = av
		} else {
			ssq += (av / scale) * (av / scale)
		}
	}
	return scale * math.Sqrt(ssq)
}

// MaxAbsDiff returns the largest absolute elementwise difference between two
// arrays of equal shape. Used by tests and convergence checks.
func (d *Dense) MaxAbsDiff(other *Dense) (float64, error) {
	if !d.shape.Equal(other.shape) {
		return 0, errors.Errorf("shape mismatch: %v vs %v", d.shape, other.shape)
	}
	maxDiff := 0.0
	for i, v := range d.data {
		diff := math.Abs(v - other.data[i])
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff, nil
}

// Zeros creates an array filled with zeros.
func Zeros(shape Shape, device Device) *Dense {
	d, err := New(shape, device)
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	return d
}

// Ones creates an array filled with ones.
func Ones(shape Shape, device Device) *Dense {
	return Full(shape, 1, device)
}

// Full creates an array filled with a specific value.
func Full(shape Shape, value float64, device Device) *Dense {
	d := Zeros(shape, device)
	for i := range d.data {
		d.data[i] = value
	}
	return d
}

// Rand creates an array with values uniformly distributed in [0, 1).
func Rand(shape Shape, device Device) *Dense {
	d := Zeros(shape, device)
	for i := range d.data {
		d.data[i] = rand.Float64() //nolint:gosec // numeric code uses math/rand intentionally
	}
	return d
}

// Randn creates an array with values from the standard normal distribution.
func Randn(shape Shape, device Device) *Dense {
	d := Zeros(shape, device)
	for i := range d.data {
		d.data[i] = rand.NormFloat64() //nolint:gosec // numeric code uses math/rand intentionally
	}
	return d
}

// Arange creates a 1D array with values from start to end (exclusive), step 1.
func Arange(start, end float64, device Device) *Dense {
	n := int(end - start)
	if n <= 0 {
		panic("end must be greater than start")
	}
	d := Zeros(Shape{n}, device)
	for i := range d.data {
		d.data[i] = start + float64(i)
	}
	return d
}

// Eye creates a 2D identity matrix.
func Eye(n int, device Device) *Dense {
	d := Zeros(Shape{n, n}, device)
	for i := 0; i < n; i++ {
		d.Set(1, i, i)
	}
	return d
}
