package bus

import "sync"

type pendingKey struct {
	command   string
	messageID string
}

type pendingResult struct {
	env Envelope
	err error
}

type pendingCall struct {
	key  pendingKey
	done chan pendingResult
}

// pendingTable holds outgoing calls waiting for their Response. Calls are
// keyed by command and message id. Message ids are generated unique, but a
// key can still be registered twice, in which case the oldest call is
// resolved first.
type pendingTable struct {
	mu    sync.Mutex
	calls map[pendingKey][]*pendingCall
	n     int
	err   error
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[pendingKey][]*pendingCall)}
}

// add registers a call. Once the table has failed, add returns the error it
// failed with.
func (t *pendingTable) add(command, messageID string) (*pendingCall, error) {
	pc := &pendingCall{
		key:  pendingKey{command: command, messageID: messageID},
		done: make(chan pendingResult, 1),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	t.calls[pc.key] = append(t.calls[pc.key], pc)
	t.n++
	return pc, nil
}

// resolve hands env to the first call waiting on its command and message id
// and removes that call. It reports whether a call was found.
func (t *pendingTable) resolve(env Envelope) bool {
	key := pendingKey{command: env.Command, messageID: env.MessageID}
	t.mu.Lock()
	calls := t.calls[key]
	if len(calls) == 0 {
		t.mu.Unlock()
		return false
	}
	pc := calls[0]
	t.drop(key, 0)
	t.mu.Unlock()

	pc.done <- pendingResult{env: env}
	return true
}

// remove takes pc out of the table without resolving it. It reports false if
// pc was already resolved.
func (t *pendingTable) remove(pc *pendingCall) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.calls[pc.key] {
		if c == pc {
			t.drop(pc.key, i)
			return true
		}
	}
	return false
}

// drop must be called with t.mu held.
func (t *pendingTable) drop(key pendingKey, i int) {
	calls := t.calls[key]
	if len(calls) == 1 {
		delete(t.calls, key)
	} else {
		t.calls[key] = append(calls[:i:i], calls[i+1:]...)
	}
	t.n--
}

// fail resolves every waiting call with err, empties the table and rejects
// later adds.
func (t *pendingTable) fail(err error) {
	t.mu.Lock()
	t.err = err
	calls := t.calls
	t.calls = make(map[pendingKey][]*pendingCall)
	t.n = 0
	t.mu.Unlock()
	for _, list := range calls {
		for _, pc := range list {
			pc.done <- pendingResult{err: err}
		}
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}
