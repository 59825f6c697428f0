package pe

import "errors"

// Open-time sentinel errors. Open and OpenBytes wrap one of these so callers
// can compare with errors.Is rather than string-matching messages.
var (
	// ErrFileOpen is returned when the underlying file could not be opened
	// or stat'd.
	ErrFileOpen = errors.New("pe: could not open file")

	// ErrTooSmall is returned when the byte range is smaller than a DOS
	// header, 64 bytes.
	ErrTooSmall = errors.New("pe: file is smaller than a DOS header")

	// ErrMapFailed is returned when the file could not be memory-mapped.
	ErrMapFailed = errors.New("pe: memory mapping failed")

	// ErrNoDOSSignature is returned when the first two bytes are neither "MZ" nor
	// "ZM".
	ErrNoDOSSignature = errors.New("pe: DOS signature not found")
)

// ErrOutsideBoundary is returned internally whenever a derived address
// would read outside the mapped byte range. It never escapes a query
// method: callers see absence instead.
var ErrOutsideBoundary = errors.New("pe: read outside image boundary")
