package hitpolicy

// Domain is the numeric space in which aggregation operands are compared and summed
type Domain int

const (
	NotComparable Domain = iota
	Integral
	Floating
)

func (d Domain) String() string {
	switch d {
	case Integral:
		return "INTEGRAL"
	case Floating:
		return "FLOATING"
	default:
		return "NOT_COMPARABLE"
	}
}

// Classify assigns a value to its numeric domain. Only signed integers and
// binary floating point kinds are numeric; unsigned integers do not fit the
// 64-bit signed domain and are not comparable.
func Classify(v any) Domain {
	switch v.(type) {
	case int, int8, int16, int32, int64:
		return Integral
	case float32, float64:
		return Floating
	default:
		return NotComparable
	}
}

// ResolveDomain returns FLOATING if any operand is floating, else INTEGRAL.
// Any non-numeric operand yields DMN-03004.
func ResolveDomain(agg Aggregator, values []any) (Domain, error) {
	domain := Integral
	for _, v := range values {
		switch Classify(v) {
		case NotComparable:
			return NotComparable, errNotComparable(agg, values)
		case Floating:
			domain = Floating
		}
	}
	return domain, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	panic("hitpolicy: toInt64 on non-integral value")
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return float64(toInt64(v))
}

// coerce expresses v in the given domain
func coerce(d Domain, v any) any {
	if d == Floating {
		return toFloat64(v)
	}
	return toInt64(v)
}

// compareIn returns -1, 0 or 1 comparing a and b inside domain d
func compareIn(d Domain, a, b any) int {
	if d == Floating {
		x, y := toFloat64(a), toFloat64(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	x, y := toInt64(a), toInt64(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// sameNumber reports whether two numeric values are equal once coerced into their common domain
func sameNumber(a, b any) (equal, numeric bool) {
	da, db := Classify(a), Classify(b)
	if da == NotComparable || db == NotComparable {
		return false, false
	}
	d := Integral
	if da == Floating || db == Floating {
		d = Floating
	}
	return compareIn(d, a, b) == 0, true
}
