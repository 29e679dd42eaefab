package feed

import (
	"fmt"
	"strings"
	"time"

	"civicfeed/internal/model"
)

// ErrNoFreshRecords aborts a reconciliation run: one of the refreshed
// extractors produced nothing, and publishing would erase its previously
// published meetings.
var ErrNoFreshRecords = fmt.Errorf("feed: no fresh records for refreshed extractor")

// Options tunes a reconciliation run.
type Options struct {
	// ForwardOnly drops records whose start is strictly before now. It is a
	// per-deployment policy, not an invariant of the feed.
	ForwardOnly bool

	// Now supplies the evaluation time for ForwardOnly; nil means time.Now.
	Now func() time.Time
}

// Summary is the per-stage accounting printed at the end of a run.
type Summary struct {
	Observed    int // raw observations decoded from run outputs
	Invalid     int // observations rejected by validation
	BadLines    int // unparseable NDJSON lines, run outputs and existing feed
	Kept        int // existing records carried over verbatim
	Removed     int // existing records purged for refreshed extractors
	Added       int // fresh records appended
	DroppedPast int // records removed by the forward-only policy
	Final       int // records in the published feed
}

func (s Summary) String() string {
	return fmt.Sprintf("kept=%d removed=%d added=%d dropped_past=%d invalid=%d bad_lines=%d final=%d",
		s.Kept, s.Removed, s.Added, s.DroppedPast, s.Invalid, s.BadLines, s.Final)
}

// Reconcile merges fresh records into the existing feed. Existing records
// owned by a refreshed extractor are purged; everything else is kept
// verbatim; fresh records are appended without further dedup, since
// normalizer identity makes re-runs of one extractor idempotent.
//
// Every refreshed extractor must contribute at least one fresh record;
// otherwise the run fails with ErrNoFreshRecords and nothing may be
// published.
func Reconcile(existing, fresh []model.Meeting, refresh []string, opts Options) ([]model.Meeting, Summary, error) {
	var sum Summary

	if exhausted := exhaustedExtractors(fresh, refresh); len(exhausted) > 0 {
		return nil, sum, fmt.Errorf("%w: %s", ErrNoFreshRecords, strings.Join(exhausted, ", "))
	}

	refreshSet := make(map[string]struct{}, len(refresh))
	for _, name := range refresh {
		refreshSet[name] = struct{}{}
	}

	merged := make([]model.Meeting, 0, len(existing)+len(fresh))
	for _, m := range existing {
		if _, stale := refreshSet[m.Extractor()]; stale {
			sum.Removed++
			continue
		}
		merged = append(merged, m)
	}
	sum.Kept = len(merged)

	merged = append(merged, fresh...)
	sum.Added = len(fresh)

	if opts.ForwardOnly {
		now := time.Now()
		if opts.Now != nil {
			now = opts.Now()
		}
		forward := merged[:0]
		for _, m := range merged {
			if m.StartTime.Before(now) {
				sum.DroppedPast++
				continue
			}
			forward = append(forward, m)
		}
		merged = forward
	}

	sum.Final = len(merged)
	return merged, sum, nil
}

// exhaustedExtractors lists refreshed extractors with zero fresh records.
func exhaustedExtractors(fresh []model.Meeting, refresh []string) []string {
	counts := make(map[string]int, len(refresh))
	for _, m := range fresh {
		counts[m.Extractor()]++
	}
	var exhausted []string
	for _, name := range refresh {
		if counts[name] == 0 {
			exhausted = append(exhausted, name)
		}
	}
	return exhausted
}
