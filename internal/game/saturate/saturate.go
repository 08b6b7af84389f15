// Package saturate provides integer arithmetic that clamps at the int range
// instead of wrapping. Damage totals, boost counters and doubled amounts all
// accumulate through it.
package saturate

const (
	MaxInt = int(^uint(0) >> 1)
	MinInt = -MaxInt - 1
)

// Add returns a+b clamped to [MinInt, MaxInt].
func Add(a, b int) int {
	if b > 0 && a > MaxInt-b {
		return MaxInt
	}
	if b < 0 && a < MinInt-b {
		return MinInt
	}
	return a + b
}

// Sub returns a-b clamped to [MinInt, MaxInt].
func Sub(a, b int) int {
	if b == MinInt {
		if a >= 0 {
			return MaxInt
		}
		return a - b
	}
	return Add(a, -b)
}

// Mul returns a*b clamped to [MinInt, MaxInt].
func Mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	result := a * b
	if result/b != a || (a == -1 && b == MinInt) || (b == -1 && a == MinInt) {
		if (a > 0) == (b > 0) {
			return MaxInt
		}
		return MinInt
	}
	return result
}

// Sum adds all values with saturation.
func Sum(values ...int) int {
	total := 0
	for _, v := range values {
		total = Add(total, v)
	}
	return total
}
