package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-switcher/internal/fsutil"
)

// Store is the per-provider collection of instances.
type Store struct {
	mu       sync.Mutex
	root     string
	provider string
}

func NewStore(root, provider string) *Store {
	return &Store{root: root, provider: provider}
}

func (s *Store) path() string {
	return filepath.Join(s.root, s.provider, "instances.json")
}

func (s *Store) lockPath() string {
	return filepath.Join(s.root, s.provider, "instances.lock")
}

// load reads the store, lazily treating a missing file as empty.
func (s *Store) load() (*storeFile, error) {
	var file storeFile
	if err := fsutil.ReadJSONFile(s.path(), &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &storeFile{}, nil
		}
		return nil, err
	}
	return &file, nil
}

func (s *Store) save(file *storeFile) error {
	return fsutil.WriteJSONAtomic(s.path(), file)
}

// withLock serializes a mutation against other processes via the file lock
// and other goroutines via the in-process mutex.
func (s *Store) withLock(fn func(*storeFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.EnsureParentDir(s.lockPath()); err != nil {
		return err
	}
	lock, err := fsutil.AcquireLock(s.lockPath())
	if err != nil {
		return err
	}
	defer lock.Release()
	file, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		return err
	}
	return s.save(file)
}

// List returns all named instances.
func (s *Store) List() ([]Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Instance, len(file.Instances))
	copy(out, file.Instances)
	return out, nil
}

// Get resolves an instance by id or, as a convenience, by exact name.
func (s *Store) Get(idOrName string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return Instance{}, err
	}
	if inst, ok := findInstance(file, idOrName); ok {
		return inst, nil
	}
	return Instance{}, ErrNotFound
}

func findInstance(file *storeFile, idOrName string) (Instance, bool) {
	for _, inst := range file.Instances {
		if inst.ID == idOrName {
			return inst, true
		}
	}
	for _, inst := range file.Instances {
		if strings.EqualFold(inst.Name, idOrName) {
			return inst, true
		}
	}
	return Instance{}, false
}

// Defaults returns the default pseudo-instance settings.
func (s *Store) Defaults() (DefaultSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return DefaultSettings{}, err
	}
	return file.DefaultSettings, nil
}

// SetDefaults replaces the default pseudo-instance settings, preserving the
// recorded pid.
func (s *Store) SetDefaults(settings DefaultSettings) error {
	return s.withLock(func(file *storeFile) error {
		settings.LastPid = file.DefaultSettings.LastPid
		file.DefaultSettings = settings
		return nil
	})
}

// Create validates and registers a new instance, initializing its data
// directory. The store is never mutated when validation or directory
// initialization fails.
func (s *Store) Create(spec CreateSpec, defaultDataDir string) (Instance, error) {
	if spec.Name == "" {
		return Instance{}, fmt.Errorf("instance name is required")
	}
	dir, err := filepath.Abs(spec.UserDataDir)
	if err != nil {
		return Instance{}, err
	}
	var created Instance
	err = s.withLock(func(file *storeFile) error {
		for _, inst := range file.Instances {
			if strings.EqualFold(inst.Name, spec.Name) {
				return fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
			}
			if sameDir(inst.UserDataDir, dir) {
				return fmt.Errorf("%w: %s", ErrDuplicateDir, dir)
			}
		}
		if err := initDataDir(file, spec, dir, defaultDataDir); err != nil {
			return err
		}
		created = Instance{
			ID:            uuid.NewString(),
			Name:          spec.Name,
			UserDataDir:   dir,
			ExtraArgs:     spec.ExtraArgs,
			BindAccountID: spec.BindAccountID,
			CreatedAt:     time.Now().UTC(),
		}
		file.Instances = append(file.Instances, created)
		created.Initialized = spec.Mode == InitCopy
		return nil
	})
	if err != nil {
		return Instance{}, err
	}
	return created, nil
}

func initDataDir(file *storeFile, spec CreateSpec, dir, defaultDataDir string) error {
	empty, err := fsutil.DirIsEmpty(dir)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%w: %s", ErrTargetNotEmpty, dir)
	}
	if spec.Mode != InitCopy {
		return os.MkdirAll(dir, 0o755)
	}
	src := defaultDataDir
	if spec.CopySourceID != "" {
		source, ok := findInstance(file, spec.CopySourceID)
		if !ok {
			return fmt.Errorf("%w: instance %s", ErrSourceMissing, spec.CopySourceID)
		}
		src = source.UserDataDir
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	return fsutil.CopyTree(src, dir)
}

func sameDir(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}

// Update applies the non-nil fields of spec to an instance.
func (s *Store) Update(id string, spec UpdateSpec) (Instance, error) {
	var updated Instance
	err := s.withLock(func(file *storeFile) error {
		idx := -1
		for i := range file.Instances {
			if file.Instances[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotFound
		}
		if spec.Name != nil {
			for i, inst := range file.Instances {
				if i != idx && strings.EqualFold(inst.Name, *spec.Name) {
					return fmt.Errorf("%w: %s", ErrDuplicateName, *spec.Name)
				}
			}
			file.Instances[idx].Name = *spec.Name
		}
		if spec.ExtraArgs != nil {
			file.Instances[idx].ExtraArgs = *spec.ExtraArgs
		}
		if spec.BindAccountID != nil {
			file.Instances[idx].BindAccountID = *spec.BindAccountID
		}
		updated = file.Instances[idx]
		return nil
	})
	if err != nil {
		return Instance{}, err
	}
	return updated, nil
}

// Delete moves the instance's data directory into trashDir and removes the
// store entry. The directory survives in trash for manual recovery.
func (s *Store) Delete(id, trashDir string) error {
	if id == DefaultID {
		return ErrDefaultImmutable
	}
	return s.withLock(func(file *storeFile) error {
		idx := -1
		for i := range file.Instances {
			if file.Instances[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotFound
		}
		dir := file.Instances[idx].UserDataDir
		if _, err := os.Stat(dir); err == nil {
			if _, err := fsutil.MoveToTrash(dir, trashDir); err != nil {
				return err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		file.Instances = append(file.Instances[:idx], file.Instances[idx+1:]...)
		return nil
	})
}

// UpdatePid records the live process id for an instance (or the default
// pseudo-instance), and stamps lastLaunchedAt when a pid is set.
func (s *Store) UpdatePid(id string, pid int32) error {
	return s.withLock(func(file *storeFile) error {
		if id == DefaultID {
			file.DefaultSettings.LastPid = pid
			return nil
		}
		for i := range file.Instances {
			if file.Instances[i].ID == id {
				file.Instances[i].LastPid = pid
				if pid != 0 {
					now := time.Now().UTC()
					file.Instances[i].LastLaunchedAt = &now
				}
				return nil
			}
		}
		return ErrNotFound
	})
}

// ClearAllPids zeroes every recorded pid, including the default's.
func (s *Store) ClearAllPids() error {
	return s.withLock(func(file *storeFile) error {
		file.DefaultSettings.LastPid = 0
		for i := range file.Instances {
			file.Instances[i].LastPid = 0
		}
		return nil
	})
}
