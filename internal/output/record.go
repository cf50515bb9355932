package output

import (
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/dsfeas/internal/driver"
)

// Record is one persisted solve cycle.
type Record struct {
	ID      string               `json:"id"`
	Time    time.Time            `json:"time"`
	Label   string               `json:"label,omitempty"`
	Input   map[int][][]float64  `json:"input,omitempty"`
	Relaxed *driver.PhaseSummary `json:"relaxed,omitempty"`
	Fixed   *driver.PhaseSummary `json:"fixed,omitempty"`
	Outcome *driver.Outcome      `json:"outcome,omitempty"`
	Output  *Snapshot            `json:"output,omitempty"`
}

func NewRecord(label string, input map[int][][]float64, out *driver.Outcome, snap *Snapshot) *Record {
	rec := &Record{
		ID:      uuid.New().String(),
		Time:    time.Now().UTC(),
		Label:   label,
		Input:   input,
		Outcome: out,
		Output:  snap,
	}
	if out != nil {
		rec.Relaxed = out.Relaxed
		rec.Fixed = out.Fixed
	}
	return rec
}

// Feasible counts feasible scenarios in the record's outcome.
func (r *Record) Feasible() (feasible, total int) {
	if r.Outcome == nil {
		return 0, 0
	}
	return r.Outcome.Feasible(), len(r.Outcome.Indicators)
}

// Sink receives records as they are produced.
type Sink interface {
	Write(rec *Record) error
	Close() error
}
