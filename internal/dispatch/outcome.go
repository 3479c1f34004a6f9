package dispatch

// Status is the terminal state of one rule's unit of work for one event.
type Status string

const (
	// StatusIngested means the event was persisted into the tenant store.
	StatusIngested Status = "ingested"
	// StatusSuspended means the rule's address was removed from the
	// upstream watch list and the owner's credits were zeroed.
	StatusSuspended Status = "suspended"
	// StatusSkipped means a data problem (missing user, missing config,
	// invalid payload) ended the unit without a write. Not an error.
	StatusSkipped Status = "skipped"
	// StatusFailed means the unit hit an error. It is recorded and never
	// propagates to sibling units or the caller; the next event for the
	// same address starts fresh.
	StatusFailed Status = "failed"
)

// Outcome is the structured result of one unit of work.
type Outcome struct {
	SettingID  string
	UserID     string
	DatabaseID string
	TargetAddr string
	Status     Status
	Reason     string
	Err        error
}

// Summary aggregates the outcomes of one dispatch. The webhook ack never
// depends on it; failures are observable only here and in logs.
type Summary struct {
	Matched  int
	Outcomes []Outcome
}

// Count returns how many outcomes have the given status
func (s *Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Ingested returns the number of persisted units
func (s *Summary) Ingested() int { return s.Count(StatusIngested) }

// Suspended returns the number of suspended units
func (s *Summary) Suspended() int { return s.Count(StatusSuspended) }

// Skipped returns the number of skipped units
func (s *Summary) Skipped() int { return s.Count(StatusSkipped) }

// Failed returns the number of failed units
func (s *Summary) Failed() int { return s.Count(StatusFailed) }
