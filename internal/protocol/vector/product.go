package vector

import "math"

// MaxProduct is the saturation ceiling of a product result.
const MaxProduct = math.MaxUint32

// SaturatingProduct multiplies values, clamping at MaxProduct.
// An empty vector, or any vector containing a zero, yields 0.
func SaturatingProduct(values []uint32) uint32 {
	var acc Accumulator
	acc.Reset()
	acc.Add(values...)
	return acc.Result()
}

// Accumulator folds a vector into its saturating product incrementally, so a
// vector can be consumed in chunks without being held in memory.
//
// The zero value must be Reset before use.
type Accumulator struct {
	product   uint64
	count     uint64
	zero      bool
	saturated bool
}

// Reset prepares the accumulator for a new vector.
func (a *Accumulator) Reset() {
	*a = Accumulator{product: 1}
}

// Add folds values into the running product.
func (a *Accumulator) Add(values ...uint32) {
	for _, v := range values {
		a.add(v)
	}
}

func (a *Accumulator) add(v uint32) {
	a.count++
	if a.zero {
		return
	}
	if v == 0 {
		a.zero = true
		return
	}
	if a.saturated {
		return
	}
	// product <= MaxProduct and v <= MaxProduct, so this cannot wrap.
	a.product *= uint64(v)
	if a.product > MaxProduct {
		a.saturated = true
	}
}

// Count returns the number of elements folded since the last Reset.
func (a *Accumulator) Count() uint64 { return a.count }

// Result returns the product of everything added since the last Reset.
func (a *Accumulator) Result() uint32 {
	switch {
	case a.count == 0, a.zero:
		return 0
	case a.saturated:
		return MaxProduct
	default:
		return uint32(a.product)
	}
}
