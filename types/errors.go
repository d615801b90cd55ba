package types

import "errors"

// Error kinds. Wrap with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrConnectivity means the feed was unavailable or timed out
	ErrConnectivity = errors.New("feed connectivity")
	// ErrData means a tick or bar carried malformed or non-finite fields
	ErrData = errors.New("malformed feed data")
	// ErrConfig means a setup or setting cannot be used
	ErrConfig = errors.New("invalid config")
)
