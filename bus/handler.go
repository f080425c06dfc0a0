package bus

import (
	"context"
	"sync"
)

// Handler answers calls made by the other end of a bus.
type Handler interface {
	RespondRPC(Responder, *Call)
}

type HandlerFunc func(Responder, *Call)

func (f HandlerFunc) RespondRPC(resp Responder, call *Call) {
	f(resp, call)
}

// Call is an incoming Request.
type Call struct {
	Command   string
	MessageID string
	Payload   interface{}

	// Caller calls back into the end that made this call.
	Caller Caller

	// Context is done when the bus is closed.
	Context context.Context
}

// Decode decodes the call payload into v.
func (c *Call) Decode(v interface{}) error {
	return DecodePayload(c.Payload, v)
}

// Responder sends the Response for a Call. A handler that returns without
// calling Return responds with a nil payload. Returning an error sends its
// text in the Response error field instead of a payload.
type Responder interface {
	Return(v interface{}) error
}

// NotImplemented answers a call nothing handles. The caller still gets a
// Response with an empty payload so it does not wait forever.
func NotImplemented(r Responder, c *Call) {
	if ni, ok := r.(interface{ notImplemented(*Call) error }); ok {
		ni.notImplemented(c)
		return
	}
	r.Return(emptyPayload())
}

// RespondMux routes calls to handlers by command name.
type RespondMux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRespondMux() *RespondMux {
	return &RespondMux{handlers: make(map[string]Handler)}
}

// Handle registers h for command. A handler registered for "" receives the
// calls no other handler matches.
func (m *RespondMux) Handle(command string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[command] = h
}

func (m *RespondMux) HandleFunc(command string, fn func(Responder, *Call)) {
	m.Handle(command, HandlerFunc(fn))
}

// Remove unregisters the handler for command and returns it.
func (m *RespondMux) Remove(command string) Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.handlers[command]
	delete(m.handlers, command)
	return h
}

// Match returns the handler for command and the name it was registered under.
func (m *RespondMux) Match(command string) (Handler, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.handlers[command]; ok {
		return h, command
	}
	if h, ok := m.handlers[""]; ok {
		return h, ""
	}
	return nil, ""
}

func (m *RespondMux) RespondRPC(r Responder, c *Call) {
	h, _ := m.Match(c.Command)
	if h == nil {
		NotImplemented(r, c)
		return
	}
	h.RespondRPC(r, c)
}

type responder struct {
	client *Client
	req    Envelope

	mu        sync.Mutex
	responded bool
}

func (r *responder) Return(v interface{}) error {
	r.mu.Lock()
	if r.responded {
		r.mu.Unlock()
		return ErrResponded
	}
	r.responded = true
	r.mu.Unlock()

	env := Envelope{
		ChannelID: r.req.ChannelID,
		MessageID: r.req.MessageID,
		Command:   r.req.Command,
		Kind:      Response,
		Payload:   v,
	}
	if err, ok := v.(error); ok {
		env.Payload = nil
		env.Error = err.Error()
		if env.Error == "" {
			env.Error = "error"
		}
	}
	return r.client.send(env)
}

func (r *responder) notImplemented(c *Call) error {
	r.client.opts.log.Warn().
		Str("channel", r.client.channelID).
		Str("command", c.Command).
		Msg("no handler for command")
	r.client.opts.metrics.UnimplementedCommand()
	return r.Return(emptyPayload())
}

func (r *responder) done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}
