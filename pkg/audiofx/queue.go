package audiofx

import "sync"

// commandQueue is an unbounded FIFO; pushing never blocks the caller
type commandQueue struct {
	lock   sync.Mutex
	items  []command
	signal chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{signal: make(chan struct{}, 1)}
}

func (q *commandQueue) push(cmd command) {
	q.lock.Lock()
	q.items = append(q.items, cmd)
	q.lock.Unlock()

	q.wake()
}

// pushAdd drops queued removals of the same session and skips the add if
// one is already waiting. It reports whether anything was queued.
func (q *commandQueue) pushAdd(sessionID int) bool {
	q.lock.Lock()

	kept := q.items[:0]
	pending := false

	for _, item := range q.items {
		switch cmd := item.(type) {
		case removeSessionCmd:
			if cmd.sessionID == sessionID {
				continue
			}
		case addSessionCmd:
			if cmd.sessionID == sessionID {
				pending = true
			}
		}
		kept = append(kept, item)
	}

	// clear the tail so dropped commands can be collected
	for idx := len(kept); idx < len(q.items); idx++ {
		q.items[idx] = nil
	}
	q.items = kept

	if !pending {
		q.items = append(q.items, addSessionCmd{sessionID: sessionID})
	}
	q.lock.Unlock()

	if !pending {
		q.wake()
	}

	return !pending
}

// pushRemove skips the removal if one is already waiting for the session
func (q *commandQueue) pushRemove(sessionID int) bool {
	q.lock.Lock()

	for _, item := range q.items {
		if cmd, ok := item.(removeSessionCmd); ok && cmd.sessionID == sessionID {
			q.lock.Unlock()
			return false
		}
	}

	q.items = append(q.items, removeSessionCmd{sessionID: sessionID})
	q.lock.Unlock()

	q.wake()

	return true
}

// pop blocks until a command is available or stop is closed
func (q *commandQueue) pop(stop <-chan struct{}) (command, bool) {
	for {
		q.lock.Lock()
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.lock.Unlock()

			return cmd, true
		}
		q.lock.Unlock()

		select {
		case <-q.signal:
		case <-stop:
			return nil, false
		}
	}
}

func (q *commandQueue) len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.items)
}

func (q *commandQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}
