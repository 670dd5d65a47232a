package index

import (
	"fmt"
	"math"
	"time"

	"github.com/solverlab/constraintstream/pkg/joiner"
)

// okey is the canonical form of an ordered index key. Canonicalization
// happens once, when a key enters or probes the index, so that the B-tree
// comparator below is total and cannot fail mid-iteration. Keys of different
// type classes order by rank; keys of the same class order by value.
type okey struct {
	rank  int8
	isInt bool
	i     int64
	f     float64
	str   string
	tm    time.Time
	sub   []okey
}

const (
	rankNumber int8 = iota
	rankString
	rankBool
	rankTime
	rankPair
)

func canonOrd(v any) (okey, error) {
	switch k := v.(type) {
	case nil:
		return okey{}, fmt.Errorf("nil ordered index key")
	case string:
		return okey{rank: rankString, str: k}, nil
	case bool:
		i := int64(0)
		if k {
			i = 1
		}
		return okey{rank: rankBool, isInt: true, i: i}, nil
	case time.Time:
		return okey{rank: rankTime, tm: k}, nil
	case time.Duration:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case joiner.Pair:
		prim, err := canonOrd(k.Primary)
		if err != nil {
			return okey{}, err
		}
		sec, err := canonOrd(k.Secondary)
		if err != nil {
			return okey{}, err
		}
		return okey{rank: rankPair, sub: []okey{prim, sec}}, nil
	case int:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case int8:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case int16:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case int32:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case int64:
		return okey{rank: rankNumber, isInt: true, i: k}, nil
	case uint:
		if uint64(k) > math.MaxInt64 {
			return okey{}, fmt.Errorf("ordered index key %d overflows the ordered range", k)
		}
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case uint8:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case uint16:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case uint32:
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case uint64:
		if k > math.MaxInt64 {
			return okey{}, fmt.Errorf("ordered index key %d overflows the ordered range", k)
		}
		return okey{rank: rankNumber, isInt: true, i: int64(k)}, nil
	case float32:
		return okey{rank: rankNumber, f: float64(k)}, nil
	case float64:
		return okey{rank: rankNumber, f: k}, nil
	default:
		return okey{}, fmt.Errorf("unsupported ordered index key type %T", v)
	}
}

func (a okey) compare(b okey) int {
	if a.rank != b.rank {
		if a.rank < b.rank {
			return -1
		}
		return 1
	}
	switch a.rank {
	case rankNumber, rankBool:
		if a.isInt && b.isInt {
			return cmp64(a.i, b.i)
		}
		return cmpFloat(a.float(), b.float())
	case rankString:
		switch {
		case a.str < b.str:
			return -1
		case a.str > b.str:
			return 1
		}
		return 0
	case rankTime:
		return a.tm.Compare(b.tm)
	case rankPair:
		for i := range a.sub {
			if i >= len(b.sub) {
				return 1
			}
			if c := a.sub[i].compare(b.sub[i]); c != 0 {
				return c
			}
		}
		if len(a.sub) < len(b.sub) {
			return -1
		}
		return 0
	}
	return 0
}

func (a okey) float() float64 {
	if a.isInt {
		return float64(a.i)
	}
	return a.f
}

func cmp64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
