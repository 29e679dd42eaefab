package model

import "time"

// Status is the lifecycle state of a meeting. It is always derived from the
// observation's cancellation hint and start time at evaluation time; it is
// never authored independently.
type Status string

const (
	StatusTentative Status = "tentative"
	StatusPassed    Status = "passed"
	StatusCanceled  Status = "canceled"
)

// Location is a meeting venue. Both fields may be empty but are never
// omitted from the published feed.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Link is a reference published alongside a meeting (agenda, minutes, ...).
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Source records the page a meeting was observed on.
type Source struct {
	URL string `json:"url"`
}

// Observation is one raw meeting as emitted by a source extractor, before
// normalization. Start and End carry the wall-clock time published on the
// source page; Timezone names the IANA zone that wall clock belongs to.
type Observation struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Classification string     `json:"classification"`
	Start          *time.Time `json:"start"`
	End            *time.Time `json:"end"`
	AllDay         bool       `json:"all_day"`
	Location       *Location  `json:"location"`
	Links          []Link     `json:"links"`
	IsCancelled    bool       `json:"is_cancelled"`
	SourceURL      string     `json:"source_url"`
	ExtractorName  string     `json:"extractor_name"`
	Timezone       string     `json:"timezone"`
}

// Extras carries feed fields kept for compatibility with prior feed
// generations rather than for direct display.
type Extras struct {
	HumanKey      string `json:"human_key"`
	ExtractorName string `json:"extractor_name"`
	Address       string `json:"address"`
}

// Meeting is the canonical public record, one per line of the published
// newline-delimited feed. Times serialize as ISO-8601 with the offset of
// the extractor's declared timezone.
type Meeting struct {
	ID             string     `json:"_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Classification string     `json:"classification"`
	Status         Status     `json:"status"`
	AllDay         bool       `json:"all_day"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Timezone       string     `json:"timezone"`
	Location       Location   `json:"location"`
	Links          []Link     `json:"links"`
	Sources        []Source   `json:"sources"`
	Extras         Extras     `json:"extras"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Extractor returns the name of the extractor that produced this record.
// The reconciler partitions the existing feed on this value.
func (m Meeting) Extractor() string {
	return m.Extras.ExtractorName
}
