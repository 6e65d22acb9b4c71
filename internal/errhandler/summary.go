package errhandler

import (
	"bufio"
	"os"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// Summary aggregates an error log.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
	Recovered  int            `json:"recovered"`
	// Malformed counts lines that are not valid JSON records.
	Malformed int       `json:"malformed"`
	First     time.Time `json:"first,omitzero"`
	Last      time.Time `json:"last,omitzero"`
}

// RecoveryRate returns the fraction of recorded errors that were recovered.
func (s Summary) RecoveryRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Recovered) / float64(s.Total)
}

// Summarize reads the JSON-lines log at path. A missing log yields an empty
// summary.
func Summarize(path string) (Summary, error) {
	sum := Summary{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
	}
	if path == "" {
		return sum, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sum, nil
		}
		return sum, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			sum.Malformed++
			continue
		}
		fields := gjson.GetManyBytes(line, "severity", "category", "recovered", "timestamp")
		if !fields[0].Exists() || !fields[1].Exists() {
			sum.Malformed++
			continue
		}
		sum.Total++
		sum.BySeverity[fields[0].String()]++
		sum.ByCategory[fields[1].String()]++
		if fields[2].Bool() {
			sum.Recovered++
		}
		if ts, err := time.Parse(time.RFC3339Nano, fields[3].String()); err == nil {
			if sum.First.IsZero() || ts.Before(sum.First) {
				sum.First = ts
			}
			if ts.After(sum.Last) {
				sum.Last = ts
			}
		}
	}
	return sum, scanner.Err()
}

// Summary aggregates the handler's own log.
func (h *Handler) Summary() (Summary, error) {
	return Summarize(h.cfg.LogFile)
}
