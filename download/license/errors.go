package license

import "fmt"

// LicenseError is returned when every license attempt failed.
type LicenseError struct {
	Attempts int
	Original error
}

func (e *LicenseError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("License error: failed after %d attempt(s): %v", e.Attempts, e.Original)
	}
	return fmt.Sprintf("License error: failed after %d attempt(s)", e.Attempts)
}

func (e *LicenseError) Unwrap() error {
	return e.Original
}

// CDMError wraps a failure inside the content decryption module.
type CDMError struct {
	Message  string
	Original error
}

func (e *CDMError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("CDM error: %s: %v", e.Message, e.Original)
	}
	return fmt.Sprintf("CDM error: %s", e.Message)
}

func (e *CDMError) Unwrap() error {
	return e.Original
}
