package snapshot

import "github.com/rotisserie/eris"

var (
	ErrSnapshotNotFound   = eris.New("snapshot not found")
	ErrInvalidDocument    = eris.New("invalid snapshot document")
	ErrUnsupportedVersion = eris.New("unsupported snapshot version")
	ErrHashMismatch       = eris.New("snapshot hash does not match its document")
)
