// Package feed implements the published meeting feed: its newline-delimited
// JSON encoding, the batch reconciliation that rebuilds it, and auxiliary
// exports.
package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	appLog "civicfeed/internal/log"
	"civicfeed/internal/model"
)

// maxLineBytes bounds a single feed line. Meeting records are small; a line
// beyond this is corrupt.
const maxLineBytes = 1 << 20

// DecodeMeetings reads a newline-delimited JSON feed. A line that fails to
// parse is logged and counted, never fatal: one corrupt line must not cost
// the rest of the feed. Blank lines are ignored.
func DecodeMeetings(r io.Reader) ([]model.Meeting, int, error) {
	var (
		meetings []model.Meeting
		bad      int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var m model.Meeting
		if err := json.Unmarshal(raw, &m); err != nil {
			bad++
			appLog.Error("feed: skipping unparseable line", err, "line", line)
			continue
		}
		meetings = append(meetings, m)
	}
	if err := sc.Err(); err != nil {
		return nil, bad, err
	}
	return meetings, bad, nil
}

// EncodeMeetings writes one JSON object per line, in slice order.
func EncodeMeetings(w io.Writer, meetings []model.Meeting) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range meetings {
		if err := enc.Encode(meetings[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeObservations reads newline-delimited raw observations from an
// extractor's run output, with the same skip-and-count policy as the feed
// decoder.
func DecodeObservations(r io.Reader) ([]model.Observation, int, error) {
	var (
		observations []model.Observation
		bad          int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var o model.Observation
		if err := json.Unmarshal(raw, &o); err != nil {
			bad++
			appLog.Error("feed: skipping unparseable observation", err, "line", line)
			continue
		}
		observations = append(observations, o)
	}
	if err := sc.Err(); err != nil {
		return nil, bad, err
	}
	return observations, bad, nil
}
