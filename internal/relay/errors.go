package relay

import "errors"

var (
	// ErrSelfPairing is returned when a participant tries to open a tunnel to itself.
	ErrSelfPairing = errors.New("sender and recipient are the same participant")
	// ErrIdentityInUse is returned when the requested participant ID already holds a live connection.
	ErrIdentityInUse = errors.New("participant id already connected")
	// ErrRecipientBusy is returned when the recipient is already paired with another participant.
	ErrRecipientBusy = errors.New("recipient already paired elsewhere")
	// ErrRecipientOffline indicates that a payload had no live recipient channel to go to.
	ErrRecipientOffline = errors.New("recipient not connected")
)
