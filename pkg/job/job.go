// Package job queues the long-running parts of deployments, so
// requests can return as soon as the deployment is recorded.
package job

import (
	"context"
	"sync"

	"github.com/go-kit/kit/log"
)

// ID identifies a job; jobs for an execution use the execution's ID.
type ID string

type Kind string

const (
	KindDeploy   Kind = "deploy"
	KindUndeploy Kind = "undeploy"
	KindSweep    Kind = "sweep"
)

type JobFunc func(context.Context, log.Logger) error

type Job struct {
	ID   ID
	Kind Kind
	Do   JobFunc
}

// Queue holds jobs, oldest first, until a worker receives them from
// Ready. It has no bound, so Enqueue never waits for a worker. A job
// is not queued twice: enqueuing an ID already waiting does nothing.
type Queue struct {
	ready chan *Job
	wake  chan struct{}
	stop  <-chan struct{}

	mu      sync.Mutex
	waiting []*Job
	queued  map[ID]bool
}

// NewQueue starts the queue, which runs until stop is closed.
func NewQueue(stop <-chan struct{}, wg *sync.WaitGroup) *Queue {
	q := &Queue{
		ready:  make(chan *Job),
		wake:   make(chan struct{}, 1),
		stop:   stop,
		queued: map[ID]bool{},
	}
	wg.Add(1)
	go q.loop(wg)
	return q
}

// Enqueue adds the job to the back of the queue. Once the queue is
// stopped, it drops the job and returns false.
func (q *Queue) Enqueue(j *Job) bool {
	select {
	case <-q.stop:
		return false
	default:
	}

	q.mu.Lock()
	if !q.queued[j.ID] {
		q.queued[j.ID] = true
		q.waiting = append(q.waiting, j)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Ready delivers jobs in the order they were enqueued.
func (q *Queue) Ready() <-chan *Job {
	return q.ready
}

// Len is the number of jobs waiting. A job being handed to a worker
// may still be counted, briefly.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Waiting returns the IDs of the jobs waiting, oldest first.
func (q *Queue) Waiting() []ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]ID, len(q.waiting))
	for i, j := range q.waiting {
		ids[i] = j.ID
	}
	return ids
}

func (q *Queue) loop(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		head := q.head()
		var out chan *Job
		if head != nil {
			out = q.ready
		}

		select {
		case <-q.stop:
			return
		case <-q.wake:
		case out <- head: // nil out blocks until there is a head
			q.pop()
		}
	}
}

func (q *Queue) head() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return nil
	}
	return q.waiting[0]
}

// pop removes the head, which only the loop takes.
func (q *Queue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queued, q.waiting[0].ID)
	q.waiting[0] = nil
	q.waiting = q.waiting[1:]
}
