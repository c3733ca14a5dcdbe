package profile

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/spaolacci/murmur3"
)

// NullSentinel stands in for SQL NULL in profiled rows, so that every null
// hashes and compares the same.
var NullSentinel = nullSentinel{}

type nullSentinel struct{}

func (nullSentinel) String() string { return "NULL" }

// appendValue appends a type-tagged encoding of v to buf.
func appendValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil, nullSentinel:
		return append(buf, 0)
	case bool:
		if x {
			return append(buf, 1, 1)
		}
		return append(buf, 1, 0)
	case int:
		return binary.BigEndian.AppendUint64(append(buf, 2), uint64(x))
	case int32:
		return binary.BigEndian.AppendUint64(append(buf, 2), uint64(x))
	case int64:
		return binary.BigEndian.AppendUint64(append(buf, 2), uint64(x))
	case uint64:
		return binary.BigEndian.AppendUint64(append(buf, 2), x)
	case float32:
		return binary.BigEndian.AppendUint64(append(buf, 3), math.Float64bits(float64(x)))
	case float64:
		return binary.BigEndian.AppendUint64(append(buf, 3), math.Float64bits(x))
	case string:
		buf = binary.BigEndian.AppendUint32(append(buf, 4), uint32(len(x)))
		return append(buf, x...)
	case []byte:
		buf = binary.BigEndian.AppendUint32(append(buf, 5), uint32(len(x)))
		return append(buf, x...)
	case time.Time:
		return binary.BigEndian.AppendUint64(append(buf, 6), uint64(x.UnixNano()))
	default:
		s := fmt.Sprint(x)
		buf = binary.BigEndian.AppendUint32(append(buf, 7), uint32(len(s)))
		return append(buf, s...)
	}
}

// distinctCounter counts distinct encoded tuples exactly by 64-bit hash until
// exactLimit tuples have been seen, then switches to a HyperLogLog sketch.
type distinctCounter struct {
	exactLimit int
	exact      map[uint64]struct{}
	sketch     *hyperloglog.Sketch
}

func newDistinctCounter(exactLimit int) *distinctCounter {
	return &distinctCounter{exactLimit: exactLimit, exact: make(map[uint64]struct{})}
}

func (c *distinctCounter) add(tuple []byte) {
	h := murmur3.Sum64(tuple)
	if c.sketch != nil {
		insertHash(c.sketch, h)
		return
	}
	c.exact[h] = struct{}{}
	if len(c.exact) > c.exactLimit {
		c.sketch = hyperloglog.New14()
		for h := range c.exact {
			insertHash(c.sketch, h)
		}
		c.exact = nil
	}
}

// insertHash feeds a tuple hash to the sketch. Exact and sketched tuples go
// through the same hash so that promotion does not count a tuple twice.
func insertHash(sk *hyperloglog.Sketch, h uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h)
	sk.Insert(b[:])
}

func (c *distinctCounter) count() float64 {
	if c.sketch != nil {
		return float64(c.sketch.Estimate())
	}
	return float64(len(c.exact))
}
