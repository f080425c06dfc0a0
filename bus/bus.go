// Package bus implements request/response calls over a cross-document
// message channel such as window.postMessage.
//
// A page embeds a frame with ToFrame and the frame connects back with ToParent.
// Both ends get a Caller for invoking named commands on the other side and
// answer the other side's calls with a Handler. The underlying channel is fire
// and forget, so every Request carries a message id that the matching Response
// echoes back; the pending call waiting on that id is then resolved.
//
// The creating side only becomes usable after the frame announces itself with
// a sentinel Request whose command is the channel id. That id is generated by
// ToFrame and handed to the frame as the post-message-event-id query parameter.
package bus

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

var (
	// ErrInvalidLink is returned by ToFrame when the frame link is empty or
	// cannot be parsed.
	ErrInvalidLink = errors.New("bus: invalid frame link")

	// ErrNoChannelID is returned by ToParent when the frame location has no
	// channel id parameter.
	ErrNoChannelID = errors.New("bus: no channel id in location")

	// ErrNotEmbedded is returned by ToParent when there is no parent window.
	ErrNotEmbedded = errors.New("bus: window is not embedded")

	// ErrNoContentWindow is returned when posting to a frame whose content
	// window is not available.
	ErrNoContentWindow = errors.New("bus: frame has no content window")

	// ErrClosed is returned by calls on a closed bus.
	ErrClosed = errors.New("bus: closed")

	// ErrResponded is returned when a Responder is used twice.
	ErrResponded = errors.New("bus: already responded")
)

func newChannelID() string {
	return uuid.NewString()
}

func newMessageID() string {
	return xid.New().String()
}
