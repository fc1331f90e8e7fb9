package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome records the result of one column's corrective transaction.
type Outcome struct {
	Column FlaggedColumn
	Err    error
}

// Report is the per-run record of what reconciliation did. It is consumed
// by the caller for logging and the hand-off decision; it is not persisted.
type Report struct {
	RunID    uuid.UUID
	Started  time.Time
	Outcomes []Outcome
}

func NewReport() *Report {
	return &Report{
		RunID:   uuid.New(),
		Started: time.Now(),
	}
}

// Add appends one outcome, preserving introspection order.
func (r *Report) Add(col FlaggedColumn, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Column: col, Err: err})
}

// Fixed counts columns whose transaction committed.
func (r *Report) Fixed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts columns whose transaction rolled back.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Fixed()
}

// Empty reports whether the run found nothing to repair.
func (r *Report) Empty() bool {
	return len(r.Outcomes) == 0
}

// Summary is a one-line digest suitable for the hand-off log.
func (r *Report) Summary() string {
	if r.Empty() {
		return fmt.Sprintf("reconciliation %s: nothing to repair", r.RunID)
	}
	return fmt.Sprintf("reconciliation %s: fixed %d of %d columns (%d failed)",
		r.RunID, r.Fixed(), len(r.Outcomes), r.Failed())
}
