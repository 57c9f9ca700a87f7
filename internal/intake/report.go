package intake

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/arrivals-intake/constants"
)

// FileResult describes what one cycle did with one eligible file.
// Records counts rows handed to the client; Failed counts the rejected ones.
type FileResult struct {
	Name         string
	DiscoveredAt time.Time
	Outcome      constants.FileOutcome
	Records      int
	Failed       int
	Checksum     string
	Destination  string
	Err          error
	RouteErr     error
}

func (r FileResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Name         string                `json:"name"`
		DiscoveredAt time.Time             `json:"discovered_at"`
		Outcome      constants.FileOutcome `json:"outcome"`
		Records      int                   `json:"records"`
		Failed       int                   `json:"failed"`
		Checksum     string                `json:"checksum,omitempty"`
		Destination  string                `json:"destination,omitempty"`
		Err          string                `json:"error,omitempty"`
		RouteErr     string                `json:"route_error,omitempty"`
	}{
		Name:         r.Name,
		DiscoveredAt: r.DiscoveredAt,
		Outcome:      r.Outcome,
		Records:      r.Records,
		Failed:       r.Failed,
		Checksum:     r.Checksum,
		Destination:  r.Destination,
	}
	if r.Err != nil {
		out.Err = r.Err.Error()
	}
	if r.RouteErr != nil {
		out.RouteErr = r.RouteErr.Error()
	}
	return json.Marshal(out)
}

// CycleReport summarises one poll cycle.
// RecordsSubmitted counts accepted records across all files.
type CycleReport struct {
	CycleID          string        `json:"cycle_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	Listed           int           `json:"listed"`
	Skipped          int           `json:"skipped"`
	Eligible         int           `json:"eligible"`
	Uploaded         int           `json:"uploaded"`
	Errored          int           `json:"errored"`
	RouteFailed      int           `json:"route_failed"`
	RecordsSubmitted int           `json:"records_submitted"`
	RecordsFailed    int           `json:"records_failed"`
	Files            []FileResult  `json:"files"`
}

func (r *CycleReport) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	r.RecordsSubmitted += fr.Records - fr.Failed
	r.RecordsFailed += fr.Failed
	switch fr.Outcome {
	case constants.OutcomeAllUploaded:
		r.Uploaded++
	case constants.OutcomeAnyFailed:
		r.Errored++
	}
	if fr.RouteErr != nil {
		r.RouteFailed++
	}
}
