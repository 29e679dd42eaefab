package feed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicfeed/internal/model"
	"civicfeed/internal/storage"
)

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func putRunOutput(t *testing.T, store storage.Blob, extractor, body string) {
	t.Helper()
	require.NoError(t, store.Upload(context.Background(), "runs/"+extractor+".ndjson", []byte(body), true))
}

func readFeed(t *testing.T, store storage.Blob, name string) []model.Meeting {
	t.Helper()
	data, err := store.Download(context.Background(), name)
	require.NoError(t, err)
	meetings, bad, err := DecodeMeetings(bytes.NewReader(data))
	require.NoError(t, err)
	require.Zero(t, bad)
	return meetings
}

func testClock() func() time.Time {
	return func() time.Time { return time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC) }
}

const boardMeetingLine = `{"title":"Board Meeting","start":"2030-05-01T09:00:00Z","source_url":"https://example.gov/m","extractor_name":"alpha","timezone":"America/Chicago"}`

func TestJobRun(t *testing.T) {
	t.Run("Should publish a new feed on an acknowledged first run", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		sum, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Observed)
		assert.Equal(t, 1, sum.Added)
		assert.Equal(t, 1, sum.Final)

		published := readFeed(t, store, "feed/latest.ndjson")
		require.Len(t, published, 1)
		assert.Equal(t, "Board Meeting", published[0].Name)
		assert.Equal(t, "alpha/203005010900/x/board_meeting", published[0].Extras.HumanKey)
		assert.Equal(t, model.StatusTentative, published[0].Status)
	})

	t.Run("Should fail when the feed is missing and first run is not acknowledged", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			Clock:      testClock(),
		}
		_, err := job.Run(context.Background())
		assert.Error(t, err)
	})

	t.Run("Should be idempotent across repeated runs of the same extractor", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		_, err := job.Run(context.Background())
		require.NoError(t, err)
		first := readFeed(t, store, "feed/latest.ndjson")

		_, err = job.Run(context.Background())
		require.NoError(t, err)
		second := readFeed(t, store, "feed/latest.ndjson")

		assert.Equal(t, first, second)
	})

	t.Run("Should keep other extractors' records across a refresh", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)
		putRunOutput(t, store, "beta", `{"title":"Park Board","start":"2030-06-01T18:00:00Z","extractor_name":"beta","timezone":"America/Chicago"}`)

		seed := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha", "beta"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		_, err := seed.Run(context.Background())
		require.NoError(t, err)

		// Refresh only alpha with a changed meeting.
		putRunOutput(t, store, "alpha", `{"title":"Special Board Meeting","start":"2030-05-02T09:00:00Z","extractor_name":"alpha","timezone":"America/Chicago"}`)
		refresh := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			Clock:      testClock(),
		}
		sum, err := refresh.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Kept)
		assert.Equal(t, 1, sum.Removed)

		published := readFeed(t, store, "feed/latest.ndjson")
		require.Len(t, published, 2)
		names := []string{published[0].Name, published[1].Name}
		assert.Contains(t, names, "Park Board")
		assert.Contains(t, names, "Special Board Meeting")
		assert.NotContains(t, names, "Board Meeting")
	})

	t.Run("Should leave the published feed untouched on source exhaustion", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)

		seed := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		_, err := seed.Run(context.Background())
		require.NoError(t, err)
		before := readFeed(t, store, "feed/latest.ndjson")

		// Empty run output for the next refresh.
		putRunOutput(t, store, "alpha", "")
		_, err = seed.Run(context.Background())
		require.ErrorIs(t, err, ErrNoFreshRecords)

		after := readFeed(t, store, "feed/latest.ndjson")
		assert.Equal(t, before, after)
	})

	t.Run("Should count invalid observations without failing the run", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha",
			boardMeetingLine+"\n"+
				`{"title":"","start":"2030-05-01T09:00:00Z","extractor_name":"alpha","timezone":"America/Chicago"}`+"\n"+
				`{broken`)

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		sum, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Invalid)
		assert.Equal(t, 1, sum.BadLines)
		assert.Equal(t, 1, sum.Final)
	})

	t.Run("Should skip corrupt lines in the existing feed", func(t *testing.T) {
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)
		require.NoError(t, store.Upload(context.Background(), "feed/latest.ndjson",
			[]byte(`{"_id":"ocd-event/keep","name":"Keep","extras":{"extractor_name":"beta"}}`+"\n{oops\n"), true))

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			Clock:      testClock(),
		}
		sum, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.BadLines)
		assert.Equal(t, 1, sum.Kept)
		assert.Equal(t, 2, sum.Final)
	})

	t.Run("Should require a refreshed extractor whose run output is absent to abort", func(t *testing.T) {
		store := newTestStore(t)

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"missing"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		_, err := job.Run(context.Background())
		assert.ErrorIs(t, err, ErrNoFreshRecords)
	})

	t.Run("Should reject a job with no extractors", func(t *testing.T) {
		job := &Job{Store: newTestStore(t), FeedBlob: "f", RunsPrefix: "runs"}
		_, err := job.Run(context.Background())
		assert.Error(t, err)
	})
}

func TestJobRunContext(t *testing.T) {
	t.Run("Should propagate context to storage calls", func(t *testing.T) {
		// FileStore ignores ctx, so this only asserts the call path accepts
		// an already-cancelled context without panicking.
		store := newTestStore(t)
		putRunOutput(t, store, "alpha", boardMeetingLine)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		job := &Job{
			Store:      store,
			FeedBlob:   "feed/latest.ndjson",
			RunsPrefix: "runs",
			Extractors: []string{"alpha"},
			FirstRun:   true,
			Clock:      testClock(),
		}
		_, err := job.Run(ctx)
		assert.NoError(t, err)
	})
}
