// Package instance manages isolated data directories for a target
// application. Each provider keeps its own store file; every mutation is
// serialized and persisted atomically.
package instance

import (
	"errors"
	"time"
)

// DefaultID identifies the pseudo-instance backed by the target's own
// installation directory. It always exists and cannot be deleted.
const DefaultID = "__default__"

var (
	ErrNotFound = errors.New("instance not found")
	// ErrDuplicateName and ErrDuplicateDir guard the case-insensitive
	// uniqueness of instance names and data directories.
	ErrDuplicateName = errors.New("instance name already in use")
	ErrDuplicateDir  = errors.New("data directory already in use")
	// ErrTargetNotEmpty is returned when a create would write into a
	// directory that already has contents.
	ErrTargetNotEmpty = errors.New("target directory is not empty")
	// ErrSourceMissing is returned when a copy-initialized create names a
	// source directory that does not exist.
	ErrSourceMissing = errors.New("copy source directory does not exist")
	// ErrDefaultImmutable guards the default pseudo-instance against
	// deletion.
	ErrDefaultImmutable = errors.New("the default instance cannot be deleted")
)

// InitMode controls how a new instance's data directory is populated.
type InitMode string

const (
	// InitEmpty requires an empty or absent target directory.
	InitEmpty InitMode = "empty"
	// InitCopy clones a source directory tree into the target.
	InitCopy InitMode = "copy"
)

// Instance is one configured data directory.
type Instance struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	UserDataDir    string     `json:"userDataDir"`
	ExtraArgs      string     `json:"extraArgs"`
	BindAccountID  string     `json:"bindAccountId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastLaunchedAt *time.Time `json:"lastLaunchedAt,omitempty"`
	LastPid        int32      `json:"lastPid,omitempty"`

	// Initialized reports whether Create populated the data directory from
	// a copy source. Set only on the value Create returns, not persisted.
	Initialized bool `json:"-"`
}

// DefaultSettings holds the configuration of the default pseudo-instance.
type DefaultSettings struct {
	BindAccountID      string `json:"bindAccountId,omitempty"`
	ExtraArgs          string `json:"extraArgs,omitempty"`
	FollowLocalAccount bool   `json:"followLocalAccount"`
	LastPid            int32  `json:"lastPid,omitempty"`
}

type storeFile struct {
	Instances       []Instance      `json:"instances"`
	DefaultSettings DefaultSettings `json:"defaultSettings"`
}

// CreateSpec describes a create request.
type CreateSpec struct {
	Name          string
	UserDataDir   string
	ExtraArgs     string
	BindAccountID string
	Mode          InitMode
	// CopySourceID names the instance to clone when Mode is InitCopy.
	// Empty means the default installation directory.
	CopySourceID string
}

// UpdateSpec carries optional field changes; nil pointers leave the field
// untouched.
type UpdateSpec struct {
	Name          *string
	ExtraArgs     *string
	BindAccountID *string
}
