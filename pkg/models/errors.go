package models

import "errors"

// Sentinel errors for video operations.
var (
	// Notification errors
	ErrMalformedEnvelope  = errors.New("malformed notification envelope")
	ErrMalformedObjectKey = errors.New("malformed object key")

	// Dispatch errors
	ErrLaunchFailed = errors.New("failed to launch transcoding job")

	// Ledger errors
	ErrVideoNotFound = errors.New("video not found")
	ErrInvalidStatus = errors.New("invalid video status")

	// Validation errors for uploads
	ErrInvalidFileType    = errors.New("invalid file type")
	ErrFilenameTooLong    = errors.New("filename too long")
	ErrInvalidContentType = errors.New("invalid content type")

	// Playback errors
	ErrUnknownQuality = errors.New("unknown quality label")
	ErrVideoNotReady  = errors.New("video is not ready for playback")
)
