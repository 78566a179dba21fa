package broker

// QueueStatus is a read-only snapshot of one queue, used by the dashboard.
type QueueStatus struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
	Waiters int    `json:"waiters"`
}

// Status is a read-only snapshot of the whole broker, computed on demand
// from the authoritative tables. It introduces no new persistent state.
type Status struct {
	Queues       []QueueStatus `json:"queues"`
	Clients      int           `json:"clients"`
	JobsTotal    int           `json:"jobs_total"`
	JobsPending  int           `json:"jobs_pending"`
	JobsAssigned int           `json:"jobs_assigned"`
	JobsCreated  int64         `json:"jobs_created"`
	JobsDeleted  int64         `json:"jobs_deleted"`
}

func (b *Broker) status() Status {
	st := Status{
		Queues:  make([]QueueStatus, 0, len(b.queues)),
		Clients: len(b.clients),
	}
	for name, q := range b.queues {
		st.Queues = append(st.Queues, QueueStatus{
			Name:    name,
			Pending: len(q.pending),
			Waiters: len(q.waiters),
		})
	}
	for _, job := range b.jobs {
		st.JobsTotal++
		if job.State == Pending {
			st.JobsPending++
		} else {
			st.JobsAssigned++
		}
	}
	st.JobsCreated = b.jobsCreated
	st.JobsDeleted = b.jobsDeleted
	return st
}
