package license

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samber/lo"
)

// KeyTypeContent is the key type that decrypts media samples.
const KeyTypeContent = "CONTENT"

// SessionID identifies one open CDM session.
type SessionID string

// Key is one key recovered from a license.
type Key struct {
	Type  string
	ID    []byte
	Value []byte
}

// CDM is the narrow content decryption module surface the exchanger needs.
// Implementations keep their cryptography private.
type CDM interface {
	Open() (SessionID, error)
	Challenge(session SessionID, pssh []byte) ([]byte, error)
	ParseLicense(session SessionID, license []byte) error
	Keys(session SessionID) ([]Key, error)
	Close(session SessionID) error
}

// LicenseClient posts a challenge to the license server for kind ("audio" or "video").
type LicenseClient interface {
	GetWidevineLicense(ctx context.Context, kind string, challenge []byte) ([]byte, error)
}

// Sleeper waits between attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer and returns early when ctx is done.
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is cancelled.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const (
	DefaultAttempts = 5
	DefaultBackoff  = 60 * time.Second
)

// Exchanger turns a PSSH into a content key.
type Exchanger struct {
	Client   LicenseClient
	CDM      CDM
	Attempts int
	Backoff  time.Duration
	Sleeper  Sleeper
}

// NewExchanger creates an exchanger with default retry settings.
func NewExchanger(client LicenseClient, cdm CDM) *Exchanger {
	return &Exchanger{
		Client:   client,
		CDM:      cdm,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
		Sleeper:  TimerSleeper{},
	}
}

// GetDecryptionKey opens a CDM session, exchanges a challenge built from the
// base64 pssh and returns the hex of the CONTENT key. The session is closed
// on every path. Before attempt n the exchanger waits (n-1)*Backoff.
func (e *Exchanger) GetDecryptionKey(ctx context.Context, kind, pssh string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(pssh)
	if err != nil {
		return "", &CDMError{Message: "invalid base64 pssh", Original: err}
	}

	session, err := e.CDM.Open()
	if err != nil {
		return "", &CDMError{Message: "failed to open session", Original: err}
	}
	defer func() {
		if err := e.CDM.Close(session); err != nil {
			log.Printf("WARN: cdm_close_failed session=%s error=%v", session, err)
		}
	}()

	attempts := e.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	sleeper := e.Sleeper
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * e.Backoff
			log.Printf("WARN: license_retry kind=%s attempt=%d/%d wait=%s error=%v", kind, attempt, attempts, wait, lastErr)
			if err := sleeper.Sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		key, err := e.exchange(ctx, session, kind, raw)
		if err == nil {
			return key, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		var cdmErr *CDMError
		if errors.As(err, &cdmErr) {
			// challenge generation and key lookup do not improve on retry
			return "", err
		}
		lastErr = err
	}
	return "", &LicenseError{Attempts: attempts, Original: lastErr}
}

// exchange runs one challenge / license round trip. License POST and parse
// failures are returned bare so they are retried.
func (e *Exchanger) exchange(ctx context.Context, session SessionID, kind string, pssh []byte) (string, error) {
	challenge, err := e.CDM.Challenge(session, pssh)
	if err != nil {
		return "", &CDMError{Message: "failed to build challenge", Original: err}
	}

	license, err := e.Client.GetWidevineLicense(ctx, kind, challenge)
	if err != nil {
		return "", fmt.Errorf("license request failed: %w", err)
	}

	if err := e.CDM.ParseLicense(session, license); err != nil {
		return "", fmt.Errorf("license parse failed: %w", err)
	}

	keys, err := e.CDM.Keys(session)
	if err != nil {
		return "", &CDMError{Message: "failed to read keys", Original: err}
	}
	content, ok := lo.Find(keys, func(k Key) bool { return k.Type == KeyTypeContent })
	if !ok {
		return "", &CDMError{Message: "license has no CONTENT key"}
	}
	return hex.EncodeToString(content.Value), nil
}
