package upload

import (
	"errors"
	"fmt"
)

// Sentinel errors for upload rejections that carry no extra state.
var (
	// ErrEmptyPayload is returned when a chunk request has no body.
	ErrEmptyPayload = errors.New("no data provided")

	// ErrAlreadyCompleted is returned when a chunk arrives for a
	// completed upload. Terminal for the session.
	ErrAlreadyCompleted = errors.New("upload already completed")

	// ErrUploadExpired is returned when a chunk arrives past the TTL
	// window. Terminal; the client must start a new upload.
	ErrUploadExpired = errors.New("upload expired")

	// ErrUploadNotFound is returned when the session id is unknown.
	ErrUploadNotFound = errors.New("upload not found")
)

// RangeError rejects a chunk whose Content-Range cannot be applied. It
// carries the authoritative offset and file size so the client can
// resynchronize without guessing.
type RangeError struct {
	Detail   string
	Offset   int64
	FileSize int64
}

func (e *RangeError) Error() string {
	return e.Detail
}

// ChecksumMismatchError aborts a promotion whose assembled bytes do not
// hash to the declared checksum.
type ChecksumMismatchError struct {
	Algorithm string
	Got       string
	Want      string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf(
		"checksum of uploaded file (%s) doesn't match checksum provided when upload was initiated (%s), checksum type is %s",
		e.Got, e.Want, e.Algorithm)
}

// DuplicateVariantError rejects an upload or promotion targeting a
// (version, provider) pair that already has a stored box.
type DuplicateVariantError struct {
	Version  string
	Provider string
}

func (e *DuplicateVariantError) Error() string {
	return fmt.Sprintf("provider %q already exists for version %q", e.Provider, e.Version)
}
