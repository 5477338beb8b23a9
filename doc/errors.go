package doc

import "errors"

// Open classifies failures into these sentinels so callers can branch with
// errors.Is. Everything after a successful open degrades per page instead.
var (
	ErrFileNotFound      = errors.New("document file not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrPasswordProtected = errors.New("document is password protected")
	ErrCorruptedDocument = errors.New("document is corrupted")
	ErrInvalidPage       = errors.New("page out of range")
	ErrClosed            = errors.New("document handle is closed")
	ErrNoBackend         = errors.New("no document backend registered")
)
