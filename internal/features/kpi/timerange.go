package kpi

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeRange is a half-open window [From, To) in epoch milliseconds.
//
// A main range has Offset 0. An offset range is the main range shifted back
// by Offset; SubtractOffset projects its instants back onto the main axis.
type TimeRange struct {
	FromMillis int64
	ToMillis   int64
	Offset     time.Duration

	// OpenFrom marks a range without lower bound. FromMillis is 0 then.
	OpenFrom bool
}

// MainRange builds the user-selected range.
func MainRange(fromMillis, toMillis int64, openFrom bool) TimeRange {
	if openFrom {
		fromMillis = 0
	}
	return TimeRange{FromMillis: fromMillis, ToMillis: toMillis, OpenFrom: openFrom}
}

// OffsetRange shifts main back by offset. The sign of offset is ignored.
func OffsetRange(main TimeRange, offset time.Duration) TimeRange {
	if offset < 0 {
		offset = -offset
	}
	ms := offset.Milliseconds()
	r := TimeRange{
		FromMillis: main.FromMillis - ms,
		ToMillis:   main.ToMillis - ms,
		Offset:     offset,
		OpenFrom:   main.OpenFrom,
	}
	if r.OpenFrom {
		r.FromMillis = 0
	}
	return r
}

func (r TimeRange) IsMain() bool { return r.Offset == 0 }

func (r TimeRange) OffsetMillis() int64 { return r.Offset.Milliseconds() }

// SubtractOffset maps an instant inside this range onto the main range.
func (r TimeRange) SubtractOffset(millis int64) int64 {
	return millis + r.OffsetMillis()
}

func (r TimeRange) String() string {
	from := fmt.Sprintf("%d", r.FromMillis)
	if r.OpenFrom {
		from = "-inf"
	}
	if r.IsMain() {
		return fmt.Sprintf("[%s, %d) main", from, r.ToMillis)
	}
	return fmt.Sprintf("[%s, %d) offset=%s", from, r.ToMillis, r.Offset)
}

func (r TimeRange) MarshalJSON() ([]byte, error) {
	out := struct {
		From *int64 `json:"from"`
		To   int64  `json:"to"`
	}{To: r.ToMillis}
	if !r.OpenFrom {
		from := r.FromMillis
		out.From = &from
	}
	return json.Marshal(out)
}
