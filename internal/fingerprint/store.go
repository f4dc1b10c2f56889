package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-switcher/internal/fsutil"
)

// Rebinder moves account bindings off a fingerprint that is going away.
type Rebinder interface {
	ReassignFingerprint(fromID, toID string) error
}

// Store persists fingerprints in a single JSON file under root.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(root string) *Store {
	return &Store{path: filepath.Join(root, "fingerprints.json")}
}

func (s *Store) load() (*storeFile, error) {
	var file storeFile
	if err := fsutil.ReadJSONFile(s.path, &file); err != nil {
		return nil, err
	}
	changed := false
	file.OriginalBaseline, changed = repairProfile(file.OriginalBaseline, changed)
	for i := range file.Fingerprints {
		file.Fingerprints[i].Profile, changed = repairProfile(file.Fingerprints[i].Profile, changed)
	}
	if changed {
		if err := s.save(&file); err != nil {
			return nil, err
		}
	}
	return &file, nil
}

func repairProfile(p Profile, changed bool) (Profile, bool) {
	fixed := p.normalize()
	return fixed, changed || fixed != p
}

func (s *Store) save(file *storeFile) error {
	sort.Slice(file.Fingerprints, func(i, j int) bool {
		a, b := file.Fingerprints[i], file.Fingerprints[j]
		if a.ID == OriginalID {
			return true
		}
		if b.ID == OriginalID {
			return false
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return fsutil.WriteJSONAtomic(s.path, file)
}

// EnsureBaseline initializes the store if absent, capturing the baseline
// from storagePath when it exists and generating a fresh identity otherwise.
// Existing stores are left untouched.
func (s *Store) EnsureBaseline(storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	baseline, err := CaptureProfile(storagePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		baseline = GenerateProfile()
	}
	file := &storeFile{
		OriginalBaseline:     baseline,
		CurrentFingerprintID: OriginalID,
		Fingerprints: []Fingerprint{{
			ID:        OriginalID,
			Name:      "Original",
			Profile:   baseline,
			CreatedAt: time.Now().UTC(),
		}},
	}
	return s.save(file)
}

// List returns all fingerprints, original first.
func (s *Store) List() ([]Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Fingerprint, len(file.Fingerprints))
	copy(out, file.Fingerprints)
	return out, nil
}

func (s *Store) Get(id string) (Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return Fingerprint{}, err
	}
	for _, fp := range file.Fingerprints {
		if fp.ID == id {
			return fp, nil
		}
	}
	return Fingerprint{}, ErrNotFound
}

// Generate creates a fingerprint with a random profile.
func (s *Store) Generate(name string) (Fingerprint, error) {
	return s.add(name, GenerateProfile())
}

// Capture creates a fingerprint from the identity currently present at
// storagePath.
func (s *Store) Capture(name, storagePath string) (Fingerprint, error) {
	profile, err := CaptureProfile(storagePath)
	if err != nil {
		return Fingerprint{}, err
	}
	return s.add(name, profile)
}

func (s *Store) add(name string, profile Profile) (Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return Fingerprint{}, err
	}
	for _, fp := range file.Fingerprints {
		if strings.EqualFold(fp.Name, name) {
			return Fingerprint{}, fmt.Errorf("fingerprint name %q already in use", name)
		}
	}
	fp := Fingerprint{
		ID:        uuid.NewString(),
		Name:      name,
		Profile:   profile.normalize(),
		CreatedAt: time.Now().UTC(),
	}
	file.Fingerprints = append(file.Fingerprints, fp)
	if err := s.save(file); err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}

// Rename changes a fingerprint's display name. The baseline keeps its name.
func (s *Store) Rename(id, name string) error {
	if id == OriginalID {
		return ErrBaselineImmutable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return err
	}
	for _, fp := range file.Fingerprints {
		if fp.ID != id && strings.EqualFold(fp.Name, name) {
			return fmt.Errorf("fingerprint name %q already in use", name)
		}
	}
	for i := range file.Fingerprints {
		if file.Fingerprints[i].ID == id {
			file.Fingerprints[i].Name = name
			return s.save(file)
		}
	}
	return ErrNotFound
}

// Delete removes a fingerprint and rebinds any accounts that referenced it
// to the original baseline. If the deleted fingerprint was current, the
// selection falls back to original.
func (s *Store) Delete(id string, rebinder Rebinder) error {
	if id == OriginalID {
		return ErrBaselineImmutable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return err
	}
	idx := -1
	for i := range file.Fingerprints {
		if file.Fingerprints[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	if rebinder != nil {
		if err := rebinder.ReassignFingerprint(id, OriginalID); err != nil {
			return err
		}
	}
	file.Fingerprints = append(file.Fingerprints[:idx], file.Fingerprints[idx+1:]...)
	if file.CurrentFingerprintID == id {
		file.CurrentFingerprintID = OriginalID
	}
	return s.save(file)
}

// SetCurrent marks the fingerprint to apply on the next switch.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return err
	}
	for _, fp := range file.Fingerprints {
		if fp.ID == id {
			file.CurrentFingerprintID = id
			return s.save(file)
		}
	}
	return ErrNotFound
}

// Current returns the selected fingerprint, falling back to the baseline if
// the selection points at a fingerprint that no longer exists.
func (s *Store) Current() (Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return Fingerprint{}, err
	}
	for _, fp := range file.Fingerprints {
		if fp.ID == file.CurrentFingerprintID {
			return fp, nil
		}
	}
	for _, fp := range file.Fingerprints {
		if fp.ID == OriginalID {
			return fp, nil
		}
	}
	return Fingerprint{}, ErrNotFound
}

// Storage file keys used by the target application for its identity.
const (
	keyMachineID        = "telemetry.machineId"
	keyMacMachineID     = "telemetry.macMachineId"
	keyDevDeviceID      = "telemetry.devDeviceId"
	keySqmID            = "telemetry.sqmId"
	keyServiceMachineID = "storage.serviceMachineId"
)

// CaptureProfile reads the identity out of a target's storage.json.
func CaptureProfile(storagePath string) (Profile, error) {
	raw, err := os.ReadFile(storagePath)
	if err != nil {
		return Profile{}, err
	}
	var blob map[string]any
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Profile{}, fmt.Errorf("parse %s: %w", storagePath, err)
	}
	p := Profile{
		MachineID:        stringKey(blob, keyMachineID),
		MacMachineID:     stringKey(blob, keyMacMachineID),
		DevDeviceID:      stringKey(blob, keyDevDeviceID),
		SqmID:            stringKey(blob, keySqmID),
		ServiceMachineID: stringKey(blob, keyServiceMachineID),
	}
	return p.normalize(), nil
}

// ApplyProfile writes a profile into a target's storage.json, preserving
// every other key in the file. A missing file is created.
func ApplyProfile(storagePath string, p Profile) error {
	blob := map[string]any{}
	raw, err := os.ReadFile(storagePath)
	if err == nil {
		if err := json.Unmarshal(raw, &blob); err != nil {
			return fmt.Errorf("parse %s: %w", storagePath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	p = p.normalize()
	blob[keyMachineID] = p.MachineID
	blob[keyMacMachineID] = p.MacMachineID
	blob[keyDevDeviceID] = p.DevDeviceID
	blob[keySqmID] = p.SqmID
	blob[keyServiceMachineID] = p.ServiceMachineID
	return fsutil.WriteJSONAtomic(storagePath, blob)
}

func stringKey(blob map[string]any, key string) string {
	if v, ok := blob[key].(string); ok {
		return v
	}
	return ""
}
