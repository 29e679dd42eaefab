// Package normalize turns raw extractor observations into canonical meeting
// records: stable identity, derived lifecycle status, defaulted optional
// fields.
package normalize

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"civicfeed/internal/model"
)

// idNamespace prefixes every opaque identifier, matching the event-id
// convention feed consumers already depend on.
const idNamespace = "ocd-event"

// humanKeyTimeLayout is the start-time segment of a human key.
const humanKeyTimeLayout = "200601021504"

// Clock supplies the evaluation time for status derivation. Injectable so
// callers and tests control "now".
type Clock func() time.Time

// ValidationError marks a single observation as unusable. It is recoverable:
// batch callers count and skip the record, they never abort on it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid observation: %s %s", e.Field, e.Reason)
}

var underscoreRun = regexp.MustCompile(`_+`)

// Slug reduces a meeting title to the feed's historical key alphabet:
// lower-cased, transliterated to ASCII, restricted to [a-z0-9_-], with
// whitespace runs collapsed to single underscores and separators trimmed
// from both ends.
func Slug(title string) string {
	s := slug.Make(title)
	s = strings.ReplaceAll(s, "-", "_")
	s = underscoreRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// HumanKey composes the stable human-readable identity for an observation.
// The literal "x" segment is preserved from prior feed generations; changing
// it would re-key every record ever published.
func HumanKey(extractor string, start time.Time, title string) string {
	return fmt.Sprintf("%s/%s/x/%s", extractor, start.Format(humanKeyTimeLayout), Slug(title))
}

// OpaqueID derives the external-facing identifier from a human key: a
// 128-bit one-way digest rendered as five hyphen-separated hex groups under
// the id namespace. The mapping is deterministic, so re-running an extractor
// reproduces identical ids.
func OpaqueID(humanKey string) string {
	sum := md5.Sum([]byte(humanKey))
	id, _ := uuid.FromBytes(sum[:])
	return idNamespace + "/" + id.String()
}

// Normalize converts a raw observation into a canonical meeting record.
// It is pure aside from reading the supplied clock; a nil clock falls back
// to time.Now.
//
// Observations missing a title, start time, extractor name, or a resolvable
// timezone are rejected with a *ValidationError.
func Normalize(obs model.Observation, clock Clock) (model.Meeting, error) {
	if clock == nil {
		clock = time.Now
	}
	if strings.TrimSpace(obs.Title) == "" {
		return model.Meeting{}, &ValidationError{Field: "title", Reason: "is missing"}
	}
	if obs.Start == nil {
		return model.Meeting{}, &ValidationError{Field: "start", Reason: "is missing"}
	}
	if strings.TrimSpace(obs.ExtractorName) == "" {
		return model.Meeting{}, &ValidationError{Field: "extractor_name", Reason: "is missing"}
	}
	if obs.Timezone == "" {
		return model.Meeting{}, &ValidationError{Field: "timezone", Reason: "is missing"}
	}
	loc, err := time.LoadLocation(obs.Timezone)
	if err != nil {
		return model.Meeting{}, &ValidationError{Field: "timezone", Reason: fmt.Sprintf("%q is unknown", obs.Timezone)}
	}

	// The extractor reports a naive wall-clock time plus a zone name;
	// rebasing pins the wall clock to that zone.
	start := rebase(*obs.Start, loc)
	var end *time.Time
	if obs.End != nil {
		e := rebase(*obs.End, loc)
		end = &e
	}

	key := HumanKey(obs.ExtractorName, start, obs.Title)
	now := clock().In(loc)

	m := model.Meeting{
		ID:             OpaqueID(key),
		Name:           obs.Title,
		Description:    obs.Description,
		Classification: obs.Classification,
		Status:         deriveStatus(obs.IsCancelled, start, now),
		AllDay:         obs.AllDay,
		StartTime:      start,
		EndTime:        end,
		Timezone:       obs.Timezone,
		Location:       model.Location{},
		Links:          obs.Links,
		Sources:        []model.Source{{URL: obs.SourceURL}},
		UpdatedAt:      now,
	}
	if obs.Location != nil {
		m.Location = *obs.Location
	}
	if m.Links == nil {
		m.Links = []model.Link{}
	}
	m.Extras = model.Extras{
		HumanKey:      key,
		ExtractorName: obs.ExtractorName,
		Address:       m.Location.Address,
	}
	return m, nil
}

// deriveStatus computes the lifecycle state: cancellation wins outright,
// otherwise a strictly-future start is tentative and everything else has
// passed.
func deriveStatus(cancelled bool, start, now time.Time) model.Status {
	switch {
	case cancelled:
		return model.StatusCanceled
	case start.After(now):
		return model.StatusTentative
	default:
		return model.StatusPassed
	}
}

func rebase(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
