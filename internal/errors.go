package internal

import "errors"

// Failure conditions the engine reports to callers. Local, recoverable
// conditions (device denial, upload failure, send failure) leave state
// untouched so the triggering action can simply be re-invoked; only a
// server-signaled room error forces an exit.
var (
	// ErrInvalidParams means the join parameters are missing a room or a
	// display name.
	ErrInvalidParams = errors.New("room and name are required")

	// ErrEmptyMessage means a submit carried neither text nor attachment.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotConnected means the transport session is down and the bounded
	// reconnect attempt before a send did not complete.
	ErrNotConnected = errors.New("not connected to room")

	// ErrSendFailed wraps a delivery failure reported by the transport or
	// the acknowledgment.
	ErrSendFailed = errors.New("message not delivered")

	// ErrAckTimeout means the server never acknowledged a sent message
	// within the configured wait.
	ErrAckTimeout = errors.New("timed out waiting for acknowledgment")

	// ErrTooLarge means the attachment exceeds the upload ceiling. No
	// network call is made.
	ErrTooLarge = errors.New("file exceeds upload size limit")

	// ErrUploadFailed wraps a non-success response from the upload endpoint.
	ErrUploadFailed = errors.New("upload failed")

	// ErrDeviceDenied means the capture device could not be acquired. The
	// session stays idle and a fresh start may be attempted.
	ErrDeviceDenied = errors.New("capture device unavailable")

	// ErrSessionState means a media session operation was called outside
	// the state that permits it.
	ErrSessionState = errors.New("operation not valid in current session state")
)
