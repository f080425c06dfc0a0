package bus

// ToParent connects a frame to the window that embedded it. The channel id
// is read from the ParamName parameter of the frame location, and the
// sentinel telling the parent the frame is ready is sent before ToParent
// returns. Calls from the parent are answered by h, which may be nil.
//
// Without a channel id or a parent window there is no bus: the problem is
// logged and ErrNoChannelID or ErrNotEmbedded returned.
func ToParent(win FrameWindow, h Handler, opts ...Option) (*Client, error) {
	o := newOptions(opts)

	channelID := ChannelIDFrom(win.Location())
	if channelID == "" {
		o.log.Warn().Str("location", win.Location()).Msgf("missing %s parameter", ParamName)
		return nil, ErrNoChannelID
	}
	parent := win.Parent()
	if parent == nil {
		o.log.Warn().Str("location", win.Location()).Msg("not running in a frame")
		return nil, ErrNotEmbedded
	}

	c := newClient(channelID, h, o, win.Origin(), func(data []byte) error {
		return parent.PostMessage(data, o.targetOrigin)
	})
	c.listen(win)

	err := c.send(Envelope{
		ChannelID: channelID,
		MessageID: channelID,
		Command:   channelID,
		Kind:      Request,
		Payload:   emptyPayload(),
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
