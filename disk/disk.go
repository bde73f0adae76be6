// Package disk maps CP/M drives and user-numbers onto directories of the
// host filesystem, and creates them.
//
// Drive A: user 0 lives in the directory "A/0", drive P: user 15 lives in
// "P/F", and so on.  All access goes through an afero.Fs, which is rooted at
// the top of the tree the emulator should use.
package disk

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// BlockSize is the size of a CP/M record, in bytes.
const BlockSize = 128

// MaxDrive is the number of drives CP/M supports, A: to P:.
const MaxDrive = 16

// MaxUser is the highest user-number.
const MaxUser = 15

var (
	// ErrInvalidDrive is returned when provisioning a drive outside A-P.
	ErrInvalidDrive = errors.New("invalid drive number")

	// ErrDriveExists is returned when provisioning a drive which is present.
	ErrDriveExists = errors.New("drive already exists")
)

// StorageError records a failure of the host filesystem.
type StorageError struct {
	// Op is the operation which failed.
	Op string

	// Path is the host path involved.
	Path string

	// Err is the underlying error.
	Err error
}

// Error returns the text of the error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Layout holds the filesystem our drives live upon.
type Layout struct {
	// Fs is the host filesystem.
	Fs afero.Fs

	// Logger is used for diagnostics.
	Logger *slog.Logger
}

// New returns a Layout using the given filesystem.
func New(fs afero.Fs, logger *slog.Logger) *Layout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layout{Fs: fs, Logger: logger}
}

// DriveLetter returns the directory name used for the given drive, 1-16.
//
// Drive numbers outside that range are a programming error, and panic.
func DriveLetter(drive uint8) string {
	if drive < 1 || drive > MaxDrive {
		panic(fmt.Sprintf("drive %d out of range", drive))
	}
	return string(rune('A' + drive - 1))
}

// UserDir returns the directory name used for the given user-number.
//
// User numbers outside 0-15 are a programming error, and panic.
func UserDir(user uint8) string {
	if user > MaxUser {
		panic(fmt.Sprintf("user %d out of range", user))
	}
	return fmt.Sprintf("%X", user)
}

// ParseUserDir returns the user-number a directory name represents.
//
// Only names which are a single hex digit are user directories.
func ParseUserDir(name string) (uint8, bool) {
	if len(name) != 1 {
		return 0, false
	}

	c := name[0]
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// DrivePath returns the path of the directory holding the given drive.
func (l *Layout) DrivePath(drive uint8) string {
	return DriveLetter(drive)
}

// Resolve returns the path of the directory holding the files of the
// given user, upon the given drive.
func (l *Layout) Resolve(drive uint8, user uint8) string {
	return filepath.Join(DriveLetter(drive), UserDir(user))
}

// Ensure creates the directory for the given drive and user, if it
// doesn't already exist.
func (l *Layout) Ensure(drive uint8, user uint8) error {
	path := l.Resolve(drive, user)

	err := l.Fs.MkdirAll(path, 0755)
	if err != nil {
		l.Logger.Debug("failed to create directory",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &StorageError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// HostPath returns the path to the named file, in the directory of the
// given drive and user.
//
// CP/M names are upper-case, but the host might have the file in mixed
// or lower-case.  If there is an existing file which differs only in case
// then that is the path returned.
func (l *Layout) HostPath(drive uint8, user uint8, name string) string {
	dir := l.Resolve(drive, user)

	files, err := afero.ReadDir(l.Fs, dir)
	if err == nil {
		for _, n := range files {
			if n.Name() == name {
				break
			}
			if strings.ToUpper(n.Name()) == name {
				name = n.Name()
				break
			}
		}
	}

	return filepath.Join(dir, name)
}

// MakeDisk creates the directory for a new drive, along with the
// directory for user 0 upon it.
func (l *Layout) MakeDisk(drive uint8) error {
	if drive < 1 || drive > MaxDrive {
		return ErrInvalidDrive
	}

	path := l.DrivePath(drive)

	exists, err := afero.Exists(l.Fs, path)
	if err != nil {
		return &StorageError{Op: "stat", Path: path, Err: err}
	}
	if exists {
		return ErrDriveExists
	}

	err = l.Fs.Mkdir(path, 0755)
	if err != nil {
		if os.IsExist(err) {
			return ErrDriveExists
		}
		l.Logger.Debug("failed to create drive",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &StorageError{Op: "mkdir", Path: path, Err: err}
	}

	return l.MakeUserDir(drive, 0)
}

// MakeUserDir creates the directory for the given user, upon a drive
// which must already exist.
func (l *Layout) MakeUserDir(drive uint8, user uint8) error {
	top := l.DrivePath(drive)

	ok, err := afero.DirExists(l.Fs, top)
	if err != nil {
		return &StorageError{Op: "stat", Path: top, Err: err}
	}
	if !ok {
		return &StorageError{Op: "mkdir", Path: top, Err: os.ErrNotExist}
	}

	path := l.Resolve(drive, user)
	err = l.Fs.Mkdir(path, 0755)
	if err != nil && !os.IsExist(err) {
		l.Logger.Debug("failed to create user directory",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &StorageError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// Truncate shrinks the given host file to hold the specified number
// of records.
//
// A file which is already that size, or smaller, is left alone.
func (l *Layout) Truncate(path string, records int) error {
	f, err := l.Fs.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return &StorageError{Op: "stat", Path: path, Err: err}
	}

	size := int64(records) * BlockSize
	if size >= st.Size() {
		return nil
	}

	err = f.Truncate(size)
	if err != nil {
		l.Logger.Debug("failed to truncate",
			slog.String("path", path),
			slog.Int("records", records),
			slog.String("error", err.Error()))
		return &StorageError{Op: "truncate", Path: path, Err: err}
	}
	return nil
}
