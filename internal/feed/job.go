package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	appLog "civicfeed/internal/log"
	"civicfeed/internal/model"
	"civicfeed/internal/normalize"
	"civicfeed/internal/storage"
)

// Job is one reconciliation run: read every refreshed extractor's run
// output, normalize it, merge it with the published feed, and replace the
// feed blob in a single upload. A Job must not run concurrently with
// another against the same feed blob; there is no optimistic concurrency
// on the read-modify-write.
type Job struct {
	Store storage.Blob

	// FeedBlob names the published feed; RunsPrefix is the blob directory
	// extractors drop their run output into, one "<name>.ndjson" each.
	FeedBlob   string
	RunsPrefix string

	// Extractors is the explicit allowlist of extractors being refreshed.
	Extractors []string

	// FirstRun acknowledges that the feed blob may not exist yet. Without
	// it a missing feed is a failure, never silently an empty feed.
	FirstRun bool

	ForwardOnly bool

	// ICSPath, if set, additionally writes an iCalendar rendering of the
	// published feed to this local path.
	ICSPath string

	// Clock drives status derivation and the forward-only filter; nil
	// means time.Now.
	Clock normalize.Clock
}

// Run executes the job and returns the per-stage summary. The published
// feed is replaced only after the whole new feed is assembled in memory;
// any error before the upload leaves the old feed untouched.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	if j.Store == nil {
		return Summary{}, errors.New("feed: job has no store")
	}
	if len(j.Extractors) == 0 {
		return Summary{}, errors.New("feed: job has no extractors to refresh")
	}
	clock := j.Clock
	if clock == nil {
		clock = time.Now
	}

	fresh, sum, err := j.collectFresh(ctx, clock)
	if err != nil {
		return sum, err
	}

	existing, err := j.loadExisting(ctx, &sum)
	if err != nil {
		return sum, err
	}

	merged, rsum, err := Reconcile(existing, fresh, j.Extractors, Options{
		ForwardOnly: j.ForwardOnly,
		Now:         clock,
	})
	if err != nil {
		return sum, err
	}
	sum.Kept = rsum.Kept
	sum.Removed = rsum.Removed
	sum.Added = rsum.Added
	sum.DroppedPast = rsum.DroppedPast
	sum.Final = rsum.Final

	var buf bytes.Buffer
	if err := EncodeMeetings(&buf, merged); err != nil {
		return sum, fmt.Errorf("feed: encode: %w", err)
	}
	if err := j.Store.Upload(ctx, j.FeedBlob, buf.Bytes(), true); err != nil {
		return sum, err
	}

	if j.ICSPath != "" {
		if err := writeICSFile(j.ICSPath, merged, clock()); err != nil {
			// The feed is already published; a failed side export should
			// not fail the run.
			appLog.Error("feed: ics export failed", err, "path", j.ICSPath)
		}
	}

	return sum, nil
}

// collectFresh downloads and normalizes every refreshed extractor's run
// output. Validation failures are counted and skipped; a missing run blob
// leaves that extractor with zero records, which Reconcile turns into a
// source-exhaustion abort.
func (j *Job) collectFresh(ctx context.Context, clock normalize.Clock) ([]model.Meeting, Summary, error) {
	var (
		fresh []model.Meeting
		sum   Summary
	)
	for _, name := range j.Extractors {
		blobName := path.Join(j.RunsPrefix, name+".ndjson")
		data, err := j.Store.Download(ctx, blobName)
		if errors.Is(err, storage.ErrNotFound) {
			appLog.Warn("feed: no run output for extractor", "extractor", name, "blob", blobName)
			continue
		}
		if err != nil {
			return nil, sum, err
		}

		observations, bad, err := DecodeObservations(bytes.NewReader(data))
		if err != nil {
			return nil, sum, fmt.Errorf("feed: read run output %s: %w", blobName, err)
		}
		sum.BadLines += bad
		sum.Observed += len(observations)

		for _, obs := range observations {
			m, err := normalize.Normalize(obs, clock)
			if err != nil {
				var verr *normalize.ValidationError
				if errors.As(err, &verr) {
					sum.Invalid++
					appLog.Warn("feed: skipping invalid observation",
						"extractor", name, "reason", verr.Error())
					continue
				}
				return nil, sum, err
			}
			fresh = append(fresh, m)
		}
	}
	return fresh, sum, nil
}

// loadExisting downloads the published feed. A missing blob is an empty
// feed only on an acknowledged first run.
func (j *Job) loadExisting(ctx context.Context, sum *Summary) ([]model.Meeting, error) {
	data, err := j.Store.Download(ctx, j.FeedBlob)
	if errors.Is(err, storage.ErrNotFound) {
		if !j.FirstRun {
			return nil, fmt.Errorf("feed: published feed %s not found (pass first-run to start a new feed)", j.FeedBlob)
		}
		appLog.Info("feed: starting a new feed", "blob", j.FeedBlob)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	existing, bad, err := DecodeMeetings(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("feed: read published feed: %w", err)
	}
	sum.BadLines += bad
	return existing, nil
}

// writeICSFile renders meetings to iCalendar at path via a temp file and
// rename.
func writeICSFile(icsPath string, meetings []model.Meeting, now time.Time) error {
	var buf bytes.Buffer
	if err := WriteICS(&buf, meetings, now); err != nil {
		return err
	}
	tmp := icsPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, icsPath)
}
