// Package money does checked arithmetic on amounts stored as int64 whole
// units of the tenant currency.
package money

import (
	"math"
	"math/bits"
)

// Mul returns quantity * unit. It reports false when either operand is
// negative or the product does not fit in an int64.
func Mul(quantity, unit int64) (int64, bool) {
	if quantity < 0 || unit < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(quantity), uint64(unit))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// Add returns a + b, or false on overflow.
func Add(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// Sum adds values left to right, stopping at the first overflow.
func Sum(values ...int64) (int64, bool) {
	var total int64
	for _, v := range values {
		var ok bool
		if total, ok = Add(total, v); !ok {
			return 0, false
		}
	}
	return total, true
}
