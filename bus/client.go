package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RemoteError is an error that has been returned from
// the handler on the other end of the bus.
type RemoteError string

func (e RemoteError) Error() string {
	return fmt.Sprintf("remote: %s", string(e))
}

// Caller makes calls to the other end of a bus.
type Caller interface {
	// Call sends payload to command and waits for the Response, decoding its
	// payload into reply unless reply is nil.
	Call(ctx context.Context, command string, payload, reply interface{}) (*Reply, error)
}

// Reply is a received Response envelope.
type Reply struct {
	Envelope
}

// Decode decodes the response payload into v.
func (r *Reply) Decode(v interface{}) error {
	return DecodePayload(r.Payload, v)
}

// Client is one end of a bus. It implements Caller for calls to the other
// end and dispatches messages received on its window: Requests go to the
// handler and Responses resolve pending calls.
type Client struct {
	channelID string
	handler   Handler
	opts      options
	origin    string
	post      func(data []byte) error
	pending   *pendingTable

	// intercept sees envelopes for this channel before dispatch and
	// returns true to consume them.
	intercept func(Envelope) bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	unlisten func()
	closed   bool
}

func newClient(channelID string, h Handler, opts options, origin string, post func([]byte) error) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		channelID: channelID,
		handler:   h,
		opts:      opts,
		origin:    origin,
		post:      post,
		pending:   newPendingTable(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ChannelID returns the id shared by both ends of the bus.
func (c *Client) ChannelID() string {
	return c.channelID
}

// Pending returns the number of calls waiting for a Response.
func (c *Client) Pending() int {
	return c.pending.len()
}

// Call sends a Request for command and blocks until the matching Response
// arrives or ctx is done. If the other end never answers and ctx has no
// deadline, Call waits until the bus is closed. A handler error on the other
// end is returned as a RemoteError.
func (c *Client) Call(ctx context.Context, command string, payload, reply interface{}) (*Reply, error) {
	if c.opts.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.callTimeout)
		defer cancel()
	}

	start := time.Now()
	c.opts.metrics.CallStarted(command)
	defer func() {
		c.opts.metrics.CallFinished(command, time.Since(start))
	}()

	id := newMessageID()
	pc, err := c.pending.add(command, id)
	if err != nil {
		return nil, err
	}
	err = c.send(Envelope{
		ChannelID: c.channelID,
		MessageID: id,
		Command:   command,
		Kind:      Request,
		Payload:   payload,
	})
	if err != nil {
		c.pending.remove(pc)
		return nil, err
	}

	select {
	case res := <-pc.done:
		if res.err != nil {
			return nil, res.err
		}
		resp := &Reply{Envelope: res.env}
		if res.env.Error != "" {
			return resp, RemoteError(res.env.Error)
		}
		if reply != nil {
			if err := resp.Decode(reply); err != nil {
				return resp, fmt.Errorf("bus: decode %s reply: %w", command, err)
			}
		}
		return resp, nil
	case <-ctx.Done():
		c.pending.remove(pc)
		return nil, ctx.Err()
	}
}

// Close stops listening on the window and fails pending calls with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unlisten := c.unlisten
	c.unlisten = nil
	c.mu.Unlock()

	if unlisten != nil {
		unlisten()
	}
	c.cancel()
	c.pending.fail(ErrClosed)
	return nil
}

func (c *Client) listen(w Window) {
	remove := w.Listen(c.receive)
	c.mu.Lock()
	c.unlisten = remove
	c.mu.Unlock()
}

// stopListening removes the window listener without closing the client.
func (c *Client) stopListening() {
	c.mu.Lock()
	unlisten := c.unlisten
	c.unlisten = nil
	c.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}
}

func (c *Client) send(env Envelope) error {
	data, err := c.opts.codec.Serializer(env)
	if err != nil {
		return fmt.Errorf("bus: serialize %s: %w", env.Command, err)
	}
	if err := c.post(data); err != nil {
		c.opts.log.Warn().
			Err(err).
			Str("channel", c.channelID).
			Str("command", env.Command).
			Msg("post failed")
		return err
	}
	c.opts.metrics.EnvelopeSent(env.Kind)
	return nil
}

func (c *Client) receive(ev MessageEvent) {
	if ev.Data == nil {
		return
	}
	env := c.opts.codec.Deserializer(ev.Data)
	if env.ChannelID == "" {
		c.opts.metrics.EnvelopeDiscarded(DiscardUndecodable)
		return
	}
	if env.ChannelID != c.channelID {
		c.opts.log.Debug().
			Str("channel", c.channelID).
			Str("received", env.ChannelID).
			Str("origin", ev.Origin).
			Msg("channel id mismatch, discarding")
		c.opts.metrics.EnvelopeDiscarded(DiscardChannelMismatch)
		return
	}
	if c.intercept != nil && c.intercept(env) {
		return
	}
	c.dispatch(env)
}

func (c *Client) dispatch(env Envelope) {
	switch env.Kind {
	case Request:
		c.opts.metrics.EnvelopeReceived(env.Kind)
		go c.respond(env)
	case Response:
		c.opts.metrics.EnvelopeReceived(env.Kind)
		if !c.pending.resolve(env) {
			c.opts.metrics.UnmatchedResponse()
			c.opts.log.Warn().
				Str("origin", c.origin).
				Str("channel", env.ChannelID).
				Str("command", env.Command).
				Str("msg_id", env.MessageID).
				Msg("response matches no pending call")
		}
	default:
		c.opts.metrics.EnvelopeDiscarded(DiscardUnknownKind)
	}
}

func (c *Client) respond(env Envelope) {
	call := &Call{
		Command:   env.Command,
		MessageID: env.MessageID,
		Payload:   env.Payload,
		Caller:    c,
		Context:   c.ctx,
	}
	r := &responder{client: c, req: env}
	defer func() {
		if p := recover(); p != nil {
			r.Return(fmt.Errorf("panic: %v", p))
			return
		}
		if !r.done() {
			r.Return(nil)
		}
	}()

	if c.handler == nil {
		NotImplemented(r, call)
		return
	}
	c.handler.RespondRPC(r, call)
}
