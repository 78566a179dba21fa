// Package broker implements the in-memory priority job broker: queues,
// jobs, blocked waiters, the assignment relation between live clients and
// jobs, and the deterministic re-queue behavior on abort, delete, or
// disconnect.
//
// The spec this broker follows requires the core to run single-threaded
// with no internal locks (every request, including any waiter wake-up it
// triggers, is handled to completion before the next one starts). The
// teacher repository reached for sync.RWMutex around a shared
// PriorityQueue; this package instead gives every piece of broker state to
// exactly one goroutine (Run) and lets every other goroutine reach it only
// through the command channel, so there is nothing left to lock.
package broker

import (
	"context"

	"github.com/brokerhq/jobcentre/pkg/codec"
	"github.com/brokerhq/jobcentre/pkg/logging"
)

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdRequest
	cmdSnapshot
)

type command struct {
	kind commandKind

	clientID int64
	req      *codec.Request

	connectReply  chan int64
	disconnectAck chan struct{}
	reply         chan codec.Response
	snapshotReply chan Status
}

// Broker owns every piece of mutable broker state. Its zero value is not
// usable; construct one with New.
type Broker struct {
	cmds chan command
	log  *logging.Logger

	jobs    map[int64]*Job
	queues  map[string]*Queue
	clients map[int64]*Client

	nextJobID    int64
	nextClientID int64

	jobsCreated int64
	jobsDeleted int64
}

// New constructs a Broker. Call Run in its own goroutine before handing the
// broker to any connection.
func New(logger *logging.Logger) *Broker {
	return &Broker{
		cmds:    make(chan command, 256),
		log:     logger,
		jobs:    make(map[int64]*Job),
		queues:  make(map[string]*Queue),
		clients: make(map[int64]*Client),
	}
}

// Run processes commands until ctx is cancelled. It is the only goroutine
// that ever touches b.jobs, b.queues, or b.clients.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-b.cmds:
			switch c.kind {
			case cmdConnect:
				c.connectReply <- b.connect()
			case cmdDisconnect:
				b.disconnect(c.clientID)
				close(c.disconnectAck)
			case cmdRequest:
				b.handle(c.clientID, c.req, c.reply)
			case cmdSnapshot:
				c.snapshotReply <- b.status()
			}
		}
	}
}

// Connect registers a new client and returns its stable numeric id.
func (b *Broker) Connect() int64 {
	reply := make(chan int64, 1)
	b.cmds <- command{kind: cmdConnect, connectReply: reply}
	return <-reply
}

// Disconnect releases a client's working set (re-queuing every job it
// held) and removes it from any waiter lists, then forgets it entirely.
// It blocks until the broker has processed the disconnect.
func (b *Broker) Disconnect(clientID int64) {
	ack := make(chan struct{})
	b.cmds <- command{kind: cmdDisconnect, clientID: clientID, disconnectAck: ack}
	<-ack
}

// Handle submits a parsed request on behalf of clientID and returns a
// channel that will receive at most one response — immediately for every
// operation except a blocking get with no current match, whose response
// arrives later when a put (or a re-queue) wakes it. If the request is
// dropped (clientID is unknown, or is blocked on an earlier get), or the
// client disconnects while its get is parked, the channel is closed
// without a response instead.
func (b *Broker) Handle(clientID int64, req *codec.Request) <-chan codec.Response {
	reply := make(chan codec.Response, 1)
	b.cmds <- command{kind: cmdRequest, clientID: clientID, req: req, reply: reply}
	return reply
}

// Status returns a point-in-time read-only snapshot for the dashboard.
func (b *Broker) Status() Status {
	reply := make(chan Status, 1)
	b.cmds <- command{kind: cmdSnapshot, snapshotReply: reply}
	return <-reply
}

func (b *Broker) connect() int64 {
	b.nextClientID++
	id := b.nextClientID
	b.clients[id] = newClient(id)
	return id
}

func (b *Broker) disconnect(clientID int64) {
	client, ok := b.clients[clientID]
	if !ok {
		return
	}
	// Waiter entries go first, so that re-queuing the working set below can
	// never hand a job back to this same departing client.
	for qname := range client.Waiting {
		if q, ok := b.queues[qname]; ok {
			q.removeWaiter(clientID)
		}
	}
	released := 0
	for id := range client.Working {
		if job, ok := b.jobs[id]; ok {
			b.requeue(job)
			released++
		}
	}
	if client.pendingReply != nil {
		close(client.pendingReply)
	}
	delete(b.clients, clientID)
	b.log.Infof("client %d disconnected, released %d job(s)", clientID, released)
}

func (b *Broker) getQueue(name string) *Queue {
	q, ok := b.queues[name]
	if !ok {
		q = newQueue(name)
		b.queues[name] = q
	}
	return q
}

func (b *Broker) handle(clientID int64, req *codec.Request, reply chan codec.Response) {
	client := b.clients[clientID]
	if client == nil {
		// Connection already torn down; nothing to do.
		close(reply)
		return
	}
	if client.blocked() {
		// A compliant client never sends a second request while a get is
		// outstanding; this repository logs and drops rather than erroring,
		// per the resolved open question on requests-while-blocked.
		b.log.Warnf("client %d sent a request while blocked, dropping", clientID)
		close(reply)
		return
	}

	switch req.Op {
	case "put":
		b.handlePut(client, req, reply)
	case "get":
		b.handleGet(client, req, reply)
	case "abort":
		b.handleAbort(client, req, reply)
	case "delete":
		b.handleDelete(client, req, reply)
	default:
		reply <- codec.NewError()
	}
}

func (b *Broker) handlePut(client *Client, req *codec.Request, reply chan codec.Response) {
	if !req.Queue.Present || !req.Pri.Present || !req.Job.Present {
		reply <- codec.NewError()
		return
	}

	id := b.nextJobID
	b.nextJobID++
	b.jobsCreated++

	job := &Job{
		ID:       id,
		Queue:    req.Queue.Value,
		Priority: int64(req.Pri.Value),
		Payload:  req.Job.Value,
		State:    Pending,
	}
	b.jobs[id] = job

	q := b.getQueue(job.Queue)
	if !b.deliverToWaiter(q, job) {
		q.push(job)
	}

	reply <- codec.NewPutOK(id)
}

func (b *Broker) handleGet(client *Client, req *codec.Request, reply chan codec.Response) {
	if !req.Queues.Present {
		reply <- codec.NewError()
		return
	}
	names := dedupe(req.Queues.Value)

	if q, job := b.resolveGet(names); job != nil {
		q.pop()
		b.assign(job, client)
		reply <- codec.NewGetOK(q.name, job.Priority, job.ID, job.Payload)
		return
	}

	if req.Wait && len(names) > 0 {
		b.park(names, client, reply)
		return
	}

	reply <- codec.NewNoJob()
}

func (b *Broker) handleAbort(client *Client, req *codec.Request, reply chan codec.Response) {
	if !req.ID.Present {
		reply <- codec.NewError()
		return
	}
	id := int64(req.ID.Value)
	job, ok := b.jobs[id]
	if !ok || job.State != Assigned || job.Owner != client.ID {
		reply <- codec.NewNoJob()
		return
	}
	delete(client.Working, id)
	b.requeue(job)
	reply <- codec.NewOK()
}

func (b *Broker) handleDelete(client *Client, req *codec.Request, reply chan codec.Response) {
	if !req.ID.Present {
		reply <- codec.NewError()
		return
	}
	id := int64(req.ID.Value)
	job, ok := b.jobs[id]
	if !ok {
		reply <- codec.NewNoJob()
		return
	}
	switch job.State {
	case Pending:
		b.getQueue(job.Queue).removeByID(id)
	case Assigned:
		if owner, ok := b.clients[job.Owner]; ok {
			delete(owner.Working, id)
		}
	}
	delete(b.jobs, id)
	b.jobsDeleted++
	reply <- codec.NewOK()
}

// resolveGet scans every named queue's live head and returns the single
// globally highest-priority candidate. A strict ">" comparison means the
// first queue in names wins any cross-queue tie, matching the spec's
// allowance to prefer the queue listed first.
func (b *Broker) resolveGet(names []string) (*Queue, *Job) {
	var bestQ *Queue
	var bestJob *Job
	for _, name := range names {
		// A plain peek must not conjure a queue into existence: per
		// spec.md §3, a queue is created lazily only by put or by a
		// blocking get, not by a get that merely checks and finds nothing.
		q, ok := b.queues[name]
		if !ok {
			continue
		}
		job := q.peek()
		if job == nil {
			continue
		}
		if bestJob == nil || job.Priority > bestJob.Priority {
			bestQ, bestJob = q, job
		}
	}
	return bestQ, bestJob
}

func (b *Broker) assign(job *Job, client *Client) {
	job.State = Assigned
	job.Owner = client.ID
	client.Working[job.ID] = true
}

func (b *Broker) park(names []string, client *Client, reply chan codec.Response) {
	client.Waiting = make(map[string]bool, len(names))
	for _, name := range names {
		client.Waiting[name] = true
	}
	client.pendingReply = reply
	for _, name := range names {
		q := b.getQueue(name)
		q.waiters = append(q.waiters, waiter{clientID: client.ID, reply: reply})
	}
}

// requeue re-queues a job that just lost its owner (abort, owner
// disconnect). It first tries to hand the job straight to a waiter, the
// same path a put follows, before falling back to the pending structure.
func (b *Broker) requeue(job *Job) {
	job.State = Pending
	job.Owner = 0
	q := b.getQueue(job.Queue)
	if !b.deliverToWaiter(q, job) {
		q.push(job)
	}
}

// deliverToWaiter hands job to the first live waiter on q, if any, clearing
// that client's waiting set on every other queue it was blocked on before
// its response is written (so the next request from that client is handled
// as idle, per spec.md §4.5).
func (b *Broker) deliverToWaiter(q *Queue, job *Job) bool {
	for len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]

		client, ok := b.clients[w.clientID]
		if !ok {
			// Disconnect removes a client's own waiter entries
			// synchronously before any other command runs, so this branch
			// is unreachable in practice; kept as a defensive skip.
			continue
		}

		b.assign(job, client)
		for qname := range client.Waiting {
			if qname != q.name {
				b.getQueue(qname).removeWaiter(client.ID)
			}
		}
		client.Waiting = make(map[string]bool)
		client.pendingReply = nil

		w.reply <- codec.NewGetOK(q.name, job.Priority, job.ID, job.Payload)
		return true
	}
	return false
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
