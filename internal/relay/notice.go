package relay

// System notices share the channel with forwarded payloads and are told apart
// by their prefix. Everything after the prefix is a human readable sentence.
const (
	// NoticePrefix marks informational notices emitted by the relay itself.
	NoticePrefix = "system-message:"
	// ErrorNoticePrefix marks rejection notices sent just before a close.
	ErrorNoticePrefix = "system-error:"
)

const (
	// NoticeRecipientOffline is sent once to a sender whose recipient has not connected yet.
	NoticeRecipientOffline = NoticePrefix + " The recipient is not connected yet. You will be notified when they come online."
	// NoticeRecipientConnected is sent to every waiting sender when its recipient finally connects.
	NoticeRecipientConnected = NoticePrefix + " The recipient is now connected."
	// NoticeStillOffline answers a payload that arrived while the recipient remains offline.
	NoticeStillOffline = NoticePrefix + " The other user is not connected yet."
	// NoticePeerLoggedOut tells the surviving side of a tunnel that its peer disconnected.
	NoticePeerLoggedOut = NoticePrefix + " The other user logged out."
	// NoticeSelfPairing rejects a tunnel whose two ends are the same participant.
	NoticeSelfPairing = ErrorNoticePrefix + " You cannot open a tunnel to yourself."
	// NoticeIDInUse rejects a connection that would duplicate a live participant ID.
	NoticeIDInUse = ErrorNoticePrefix + " There is already a user connected with the requested ID."
	// NoticeRecipientBusy rejects a sender whose recipient is already paired elsewhere.
	NoticeRecipientBusy = ErrorNoticePrefix + " The recipient is already in a conversation with someone else."
)

// RejectionNotice maps a rejection error to the wire notice the connecting
// participant receives before its channel is closed.
func RejectionNotice(reason error) string {
	switch reason {
	case ErrSelfPairing:
		return NoticeSelfPairing
	case ErrRecipientBusy:
		return NoticeRecipientBusy
	default:
		return NoticeIDInUse
	}
}
