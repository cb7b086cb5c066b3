package datasync

import (
	"context"
	"sync"

	"github.com/2beens/fittrack/internal/model"
)

type QueryState int

const (
	NotRequested QueryState = iota
	Pending
	Ready
	Failed
)

func (s QueryState) String() string {
	switch s {
	case NotRequested:
		return "not_requested"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (s QueryState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LogQuery tracks the fetch of one log type of one client.
// Consumers either Wait for it or Subscribe to its state transitions.
type LogQuery struct {
	ClientID string
	LogType  model.LogType

	mutex       sync.Mutex
	state       QueryState
	err         error
	done        chan struct{}
	doneClosed  bool
	subscribers map[chan QueryState]struct{}
}

func newLogQuery(clientID string, logType model.LogType) *LogQuery {
	return &LogQuery{
		ClientID:    clientID,
		LogType:     logType,
		state:       NotRequested,
		done:        make(chan struct{}),
		subscribers: make(map[chan QueryState]struct{}),
	}
}

func (q *LogQuery) State() QueryState {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.state
}

// Err is the error of the last failed fetch.
func (q *LogQuery) Err() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.err
}

// Wait blocks until the query is Ready or Failed, and returns the fetch error.
func (q *LogQuery) Wait(ctx context.Context) error {
	q.mutex.Lock()
	if q.state == Ready || q.state == Failed {
		err := q.err
		q.mutex.Unlock()
		return err
	}
	done := q.done
	q.mutex.Unlock()

	select {
	case <-done:
		return q.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving the latest state after each
// transition. Slow readers only see the most recent state.
func (q *LogQuery) Subscribe() (<-chan QueryState, func()) {
	ch := make(chan QueryState, 1)
	q.mutex.Lock()
	q.subscribers[ch] = struct{}{}
	ch <- q.state
	q.mutex.Unlock()

	return ch, func() {
		q.mutex.Lock()
		defer q.mutex.Unlock()
		delete(q.subscribers, ch)
	}
}

func (q *LogQuery) setPending() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.state == Pending {
		return
	}
	q.state = Pending
	q.err = nil
	if q.doneClosed {
		q.done = make(chan struct{})
		q.doneClosed = false
	}
	q.publishLocked()
}

func (q *LogQuery) succeed() {
	q.finish(Ready, nil)
}

func (q *LogQuery) fail(err error) {
	q.finish(Failed, err)
}

func (q *LogQuery) finish(state QueryState, err error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.state = state
	q.err = err
	if !q.doneClosed {
		close(q.done)
		q.doneClosed = true
	}
	q.publishLocked()
}

func (q *LogQuery) publishLocked() {
	for ch := range q.subscribers {
		select {
		case ch <- q.state:
		default:
			// drop the stale state, only this method sends
			select {
			case <-ch:
			default:
			}
			ch <- q.state
		}
	}
}
