package joiner

import (
	"fmt"
	"math"
	"time"
)

// Pair is a two-part key compared lexicographically: Primary decides the
// order and Secondary breaks ties. The engine uses it to pair a planning id
// with the fact's stable insertion sequence so that distinct facts with equal
// planning ids still order deterministically.
type Pair struct {
	Primary   any
	Secondary any
}

// Compare orders two extracted keys. It returns a negative value, zero or a
// positive value when a orders below, equal to or above b. Keys of
// incomparable dynamic types are an error, never a silent mismatch.
func Compare(a, b any) (int, error) {
	switch av := a.(type) {
	case Pair:
		bv, ok := b.(Pair)
		if !ok {
			return 0, incomparable(a, b)
		}
		c, err := Compare(av.Primary, bv.Primary)
		if err != nil || c != 0 {
			return c, err
		}
		return Compare(av.Secondary, bv.Secondary)
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, incomparable(a, b)
		}
		return cmpOrdered(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, incomparable(a, b)
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, incomparable(a, b)
		}
		return av.Compare(bv), nil
	case time.Duration:
		bv, ok := b.(time.Duration)
		if !ok {
			return 0, incomparable(a, b)
		}
		return cmpOrdered(av, bv), nil
	}

	// Integer keys compare exactly, so values beyond float64's 2^53 integer
	// range keep their order. uint64 keys past the int64 range order above
	// every int64-representable key.
	ai, aInt := toInt64(a)
	bi, bInt := toInt64(b)
	au, aBig := overflowUint(a)
	bu, bBig := overflowUint(b)
	switch {
	case aInt && bInt:
		return cmpOrdered(ai, bi), nil
	case aBig && bBig:
		return cmpOrdered(au, bu), nil
	case aBig && bInt:
		return 1, nil
	case aInt && bBig:
		return -1, nil
	}

	// Mixed integer and float keys compare numerically.
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		return cmpOrdered(an, bn), nil
	}

	return 0, incomparable(a, b)
}

// Equivalent reports whether two extracted keys are equal under Compare, with
// one widening: keys whose dynamic types are comparable but unordered (fact
// pointers, custom id types) fall back to Go equality. Equality joiners can
// therefore key on identities that have no total order.
func Equivalent(a, b any) (bool, error) {
	if c, err := Compare(a, b); err == nil {
		return c == 0, nil
	}
	if !hashable(a) || !hashable(b) {
		return false, incomparable(a, b)
	}
	return a == b, nil
}

func cmpOrdered[T interface {
	~int | ~int64 | ~uint64 | ~float64 | ~string
}](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

// overflowUint reports an unsigned key beyond the int64 range.
func overflowUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		if uint64(n) > math.MaxInt64 {
			return uint64(n), true
		}
	case uint64:
		if n > math.MaxInt64 {
			return n, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// hashable reports whether v can be used as a map key without panicking.
func hashable(v any) bool {
	switch v.(type) {
	case nil:
		return true
	}
	defer func() { _ = recover() }()
	_ = map[any]struct{}{v: {}}
	return true
}

func incomparable(a, b any) error {
	return fmt.Errorf("cannot compare keys of type %T and %T", a, b)
}
