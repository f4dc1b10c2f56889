// Package fsutil holds the filesystem primitives every durable store in this
// program relies on: torn-write-safe file replacement, JSON store IO that
// quarantines corrupt files instead of resetting them, recursive directory
// copies, and recoverable (trash) deletion.
package fsutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CorruptError reports a store file that exists but cannot be parsed. The
// file is left untouched on disk so the user can inspect or recover it.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("store file %s is corrupted: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o700)
}

// WriteJSONAtomic marshals value and replaces path atomically.
func WriteJSONAtomic(path string, value any) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}

	bytes, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	bytes = append(bytes, '\n')

	return WriteFileAtomic(path, bytes, 0o600)
}

// WriteFileAtomic writes content to a temp file in the target directory,
// fsyncs it, and renames it over path.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d", base, time.Now().UnixNano()))

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp)
	}()

	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	dirFD, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer dirFD.Close()
	_ = dirFD.Sync()
	return nil
}

// ReadJSONFile decodes path into out. A parse failure is reported as a
// *CorruptError; the file is never rewritten or removed here.
func ReadJSONFile(path string, out any) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes, out); err != nil {
		return &CorruptError{Path: path, Err: err}
	}
	return nil
}

// DirIsEmpty reports whether path is an empty directory. A missing path
// counts as empty.
func DirIsEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return len(entries) == 0, nil
}

// CopyTree recursively copies src into dst. Symlinks are recreated as links;
// file modes are preserved. dst is created if absent.
func CopyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("copy source %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		entryInfo, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entryInfo.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case entryInfo.IsDir():
			if err := CopyTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, entryInfo.Mode().Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// MoveToTrash relocates path into trashDir under a timestamped name instead
// of deleting it. Falls back to a copy+remove when rename crosses devices.
func MoveToTrash(path, trashDir string) (string, error) {
	if err := os.MkdirAll(trashDir, 0o700); err != nil {
		return "", err
	}
	dest := filepath.Join(trashDir, fmt.Sprintf("%s.%d", filepath.Base(path), time.Now().UnixNano()))
	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}
	if err := CopyTree(path, dest); err != nil {
		return "", err
	}
	if err := os.RemoveAll(path); err != nil {
		return "", err
	}
	return dest, nil
}
