package domain

import "errors"

// Chat error taxonomy. Resolver and send-path errors are fatal to the
// operation and propagate to the caller; fire-and-forget side effects
// (notifications, session touch-up, mark-read) only warn.
var (
	// ErrSessionCreationFailed: insert returned no row, e.g. hidden from
	// the writer by access control. The caller cannot proceed without a
	// session id.
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrSessionClaimFailed: the claim update returned no row and the
	// session could not be re-read.
	ErrSessionClaimFailed = errors.New("failed to claim session")

	// ErrNoActiveSession: an admin tried to join a customer that never
	// started a chat. Admins cannot originate sessions.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSendFailed: message insert failed; the optimistic entry has been
	// rolled back.
	ErrSendFailed = errors.New("message send failed")

	// ErrSubscription: the live feed could not be established or dropped.
	// Surfaced as a transient connectivity problem; no auto-reconnect.
	ErrSubscription = errors.New("live feed subscription error")

	// ErrMarkReadFailed: read-flag update failed. Non-fatal, warn only.
	ErrMarkReadFailed = errors.New("failed to mark message as read")

	// ErrEmptyMessage: content is empty after trimming.
	ErrEmptyMessage = errors.New("message content is empty")
)
