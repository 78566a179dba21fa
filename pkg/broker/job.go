package broker

import "github.com/brokerhq/jobcentre/pkg/value"

// JobState tracks where a live job currently sits. A deleted job has no
// JobState at all: it is simply absent from the broker's job table
// (invariant 5 — deleting a job removes all evidence of it).
type JobState int

const (
	Pending JobState = iota
	Assigned
)

// Job is one unit of work. Payload is carried verbatim from the put that
// created it to whichever get eventually claims it.
type Job struct {
	ID       int64
	Queue    string
	Priority int64
	Payload  value.Value

	State JobState
	// Owner is the id of the client currently holding this job. Only
	// meaningful when State == Assigned.
	Owner int64
}
