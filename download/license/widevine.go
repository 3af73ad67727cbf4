package license

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	widevine "github.com/iyear/gowidevine"
	"github.com/iyear/gowidevine/widevinepb"
)

type widevineSession struct {
	parse func(license []byte) ([]*widevine.Key, error)
	keys  []Key
}

// WidevineCDM is a CDM backed by a provisioned device file (.wvd).
type WidevineCDM struct {
	cdm *widevine.CDM

	mu       sync.Mutex
	sessions map[SessionID]*widevineSession
}

// NewWidevineCDM loads a device from a .wvd file.
func NewWidevineCDM(wvdPath string) (*WidevineCDM, error) {
	f, err := os.Open(wvdPath)
	if err != nil {
		return nil, &CDMError{Message: "failed to open wvd file", Original: err}
	}
	defer f.Close()

	device, err := widevine.NewDevice(widevine.FromWVD(f))
	if err != nil {
		return nil, &CDMError{Message: "failed to load wvd device", Original: err}
	}
	return &WidevineCDM{
		cdm:      widevine.NewCDM(device),
		sessions: make(map[SessionID]*widevineSession),
	}, nil
}

func (w *WidevineCDM) session(id SessionID) (*widevineSession, error) {
	s, ok := w.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %s", id)
	}
	return s, nil
}

// Open starts a new session.
func (w *WidevineCDM) Open() (SessionID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := SessionID(uuid.NewString())
	w.sessions[id] = &widevineSession{}
	return id, nil
}

// Challenge builds a license request for a raw PSSH box.
func (w *WidevineCDM) Challenge(id SessionID, pssh []byte) ([]byte, error) {
	box, err := widevine.NewPSSH(pssh)
	if err != nil {
		return nil, fmt.Errorf("invalid pssh: %w", err)
	}

	challenge, parse, err := w.cdm.GetLicenseChallenge(box, widevinepb.LicenseType_AUTOMATIC, false)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.session(id)
	if err != nil {
		return nil, err
	}
	s.parse = parse
	s.keys = nil
	return challenge, nil
}

// ParseLicense decrypts the license against the session's last challenge.
func (w *WidevineCDM) ParseLicense(id SessionID, license []byte) error {
	w.mu.Lock()
	s, err := w.session(id)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	if s.parse == nil {
		return fmt.Errorf("session %s has no pending challenge", id)
	}

	keys, err := s.parse(license)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	s.keys = make([]Key, 0, len(keys))
	for _, k := range keys {
		s.keys = append(s.keys, Key{Type: k.Type.String(), ID: k.ID, Value: k.Key})
	}
	return nil
}

// Keys returns the keys of the last parsed license.
func (w *WidevineCDM) Keys(id SessionID) ([]Key, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.session(id)
	if err != nil {
		return nil, err
	}
	return s.keys, nil
}

// Close forgets the session.
func (w *WidevineCDM) Close(id SessionID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.session(id); err != nil {
		return err
	}
	delete(w.sessions, id)
	return nil
}
