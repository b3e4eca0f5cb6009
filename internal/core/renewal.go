package core

import (
	"fmt"
	"time"
)

// AddMonthsClamped adds n calendar months to t. The day of month is kept when the
// target month has it, otherwise it is clamped to the target month's last day
// (Jan 31 + 1 month = Feb 28/29). Clock time and location are preserved.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + n
	year := y + floorDiv(total, 12)
	month := time.Month(floorMod(total, 12) + 1)

	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// NextRenewal returns the first renewal strictly after asOf, stepping from startDate
// in whole cycles. Steps are anchored on startDate, so a subscription started on the
// 31st renews on the last day of short months and on the 31st again afterwards.
// A startDate already after asOf is returned unchanged.
func NextRenewal(startDate time.Time, cycle Cycle, asOf time.Time) (time.Time, error) {
	if startDate.IsZero() {
		return time.Time{}, ErrZeroStartDate
	}
	step, err := cycle.Months()
	if err != nil {
		return time.Time{}, err
	}
	if startDate.After(asOf) {
		return startDate, nil
	}

	asOf = asOf.In(startDate.Location())
	elapsed := (asOf.Year()-startDate.Year())*12 + int(asOf.Month()) - int(startDate.Month())
	n := elapsed/step - 1
	if n < 0 {
		n = 0
	}

	// At most a couple of steps: n*step months lands in the month before asOf.
	for i := 0; i < 4; i++ {
		next := AddMonthsClamped(startDate, n*step)
		if next.After(asOf) {
			return next, nil
		}
		n++
	}
	return time.Time{}, fmt.Errorf("renewal from %s did not advance past %s", startDate.Format(time.RFC3339), asOf.Format(time.RFC3339))
}

// In returns a copy of s with its start date in loc. Renewal dates and
// reminder instants follow the start date's location, so callers that compute
// them must agree on loc.
func (s Subscription) In(loc *time.Location) Subscription {
	if loc != nil {
		s.StartDate = s.StartDate.In(loc)
	}
	return s
}

// NextRenewal computes the subscription's next renewal relative to asOf.
func (s Subscription) NextRenewal(asOf time.Time) (time.Time, error) {
	return NextRenewal(s.StartDate, s.Cycle, asOf)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
