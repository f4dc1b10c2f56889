// Package fingerprint manages device identity profiles presented to target
// applications as telemetry identity. The captured baseline ("original") is
// permanent; user-created fingerprints can be generated, captured, renamed,
// and deleted.
package fingerprint

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OriginalID is the id of the captured baseline fingerprint.
const OriginalID = "original"

var (
	ErrNotFound = errors.New("fingerprint not found")
	// ErrBaselineImmutable guards the original baseline against deletion
	// and renaming.
	ErrBaselineImmutable = errors.New("the original fingerprint cannot be modified")
)

// Profile is the identifier set a target application reads as its machine
// identity.
type Profile struct {
	MachineID        string `json:"machineId"`
	MacMachineID     string `json:"macMachineId"`
	DevDeviceID      string `json:"devDeviceId"`
	SqmID            string `json:"sqmId"`
	ServiceMachineID string `json:"serviceMachineId"`
}

// Fingerprint is one named profile.
type Fingerprint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"createdAt"`
}

// storeFile is the on-disk shape.
type storeFile struct {
	OriginalBaseline     Profile       `json:"originalBaseline"`
	CurrentFingerprintID string        `json:"currentFingerprintId"`
	Fingerprints         []Fingerprint `json:"fingerprints"`
}

// GenerateProfile produces a fresh random identity.
func GenerateProfile() Profile {
	return Profile{
		MachineID:        randomHex(32),
		MacMachineID:     randomHex(32),
		DevDeviceID:      uuid.NewString(),
		SqmID:            "{" + strings.ToUpper(uuid.NewString()) + "}",
		ServiceMachineID: uuid.NewString(),
	}
}

// normalize repairs an invalid serviceMachineId; the host rejects values
// that do not parse as a UUID.
func (p Profile) normalize() Profile {
	if _, err := uuid.Parse(p.ServiceMachineID); err != nil {
		p.ServiceMachineID = uuid.NewString()
	}
	return p
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}
