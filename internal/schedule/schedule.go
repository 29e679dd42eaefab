// Package schedule projects recurring meeting patterns ("1st and 3rd
// Tuesday") onto concrete calendar dates. Extractors use it when a source
// publishes only a textual schedule rule instead of dated announcements.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Rule describes a fixed weekday/ordinal meeting pattern over an inclusive
// date range. It is a pure value: no identity, no mutation.
type Rule struct {
	// Weekday is the day the body meets on: 0 = Monday ... 6 = Sunday.
	Weekday int

	// Ordinals are 0-based occurrence ranks of Weekday within a month
	// (0 = first occurrence, 1 = second, ...). An ordinal with no
	// corresponding occurrence in a short month is simply absent from the
	// projection. Ordinals >= 5 never match any month.
	Ordinals []int

	// Start / End bound the projection, inclusive on both ends. Only the
	// date portion is significant.
	Start time.Time
	End   time.Time
}

var weekdays = [...]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// Project computes every date in [r.Start, r.End] whose weekday matches
// r.Weekday and whose 0-based occurrence rank within its month is a member
// of r.Ordinals. Dates are returned in ascending order at midnight UTC.
//
// Projection is stateless and deterministic: re-running with the same rule
// yields the same sequence. An empty ordinal set yields an empty result.
func Project(r Rule) ([]time.Time, error) {
	if r.Weekday < 0 || r.Weekday > 6 {
		return nil, fmt.Errorf("schedule: weekday %d out of range 0-6", r.Weekday)
	}
	start := atMidnightUTC(r.Start)
	end := atMidnightUTC(r.End)
	if end.Before(start) {
		return nil, errors.New("schedule: end is before start")
	}
	if len(r.Ordinals) == 0 {
		return nil, nil
	}

	byday := make([]rrule.Weekday, 0, len(r.Ordinals))
	seen := make(map[int]struct{}, len(r.Ordinals))
	for _, ord := range r.Ordinals {
		if ord < 0 {
			return nil, fmt.Errorf("schedule: negative ordinal %d", ord)
		}
		if _, ok := seen[ord]; ok {
			continue
		}
		seen[ord] = struct{}{}
		// rrule counts occurrences 1-based; the rule's ordinals are 0-based.
		byday = append(byday, weekdays[r.Weekday].Nth(ord+1))
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.MONTHLY,
		Dtstart:   start,
		Byweekday: byday,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	// Between with inc=true keeps dates equal to either bound, which covers
	// partial boundary months without special-casing them.
	return rule.Between(start, end, true), nil
}

func atMidnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
