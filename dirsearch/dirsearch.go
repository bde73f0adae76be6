// Package dirsearch implements the CP/M "find first" and "find next"
// directory searches, against the files in a host directory.
//
// CP/M knows the size of a file only through its directory entries, one
// for each extent of the file.  The host has no such structure, so for
// every matching host file we synthesize one entry per extent, from the
// size of the file, at the time it is found.
package dirsearch

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/skx/cpmhostfs/disk"
	"github.com/skx/cpmhostfs/fcb"
	"github.com/spf13/afero"
)

// AllUsers may be passed as the user-number to FindFirst to search the
// directories of every user upon the drive.
const AllUsers = '?'

// DefaultExtentRecords is the number of records in one extent, and so in
// one directory entry, unless configured otherwise.
const DefaultExtentRecords = 128

// ErrNoMoreFiles is returned when a search has nothing (more) to report.
var ErrNoMoreFiles = errors.New("no more files")

// Searcher holds the configuration shared by our searches.
type Searcher struct {
	// disks tells us where each drive/user lives.
	disks *disk.Layout

	// extentRecords is the number of records reported per directory entry.
	extentRecords int

	// Logger is used for diagnostics.
	Logger *slog.Logger
}

// Option is used to configure a Searcher.
type Option func(*Searcher)

// WithExtentRecords sets the number of records held in one extent.
//
// A directory entry can count at most 128 records, so larger values
// are capped at that.
func WithExtentRecords(n int) Option {
	return func(s *Searcher) {
		if n < 1 {
			n = 1
		}
		if n > fcb.RecordsPerExtent {
			n = fcb.RecordsPerExtent
		}
		s.extentRecords = n
	}
}

// WithLogger sets the logger to use.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		s.Logger = logger
	}
}

// New returns a Searcher for the drives in the given layout.
func New(disks *disk.Layout, options ...Option) *Searcher {
	s := &Searcher{
		disks:         disks,
		extentRecords: DefaultExtentRecords,
		Logger:        slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Session holds the state of one search, between "find first" and the
// calls to "find next" which follow it.
//
// A Session is owned by the caller, there is no shared search state.
type Session struct {
	s *Searcher

	// drive and user being searched.
	drive uint8
	user  uint8

	// name and typ hold the pattern.
	name [8]uint8
	typ  [3]uint8

	// wantDirEntries is set when the caller wants the extents of each
	// file reported, rather than just the names.
	wantDirEntries bool

	// dir is the host directory currently being listed, and files are
	// its contents.  offset is the next entry to look at.
	dir    string
	files  []os.FileInfo
	offset int
	open   bool

	// seen holds the names already reported from dir, as host files
	// differing only in case share a CP/M name.
	seen map[string]bool

	// allUsers is set for the all-users variant, users holds the names
	// of the user directories of the drive and userOffset the next one.
	allUsers   bool
	users      []os.FileInfo
	userOffset int

	// host is the file being reported, records is the number of
	// records of it not yet reported, and extent is the index of the
	// next entry.
	host    string
	records int
	extent  int
	flags   fcb.Flags
}

// FindFirst starts a search of the given drive and user for files
// matching the pattern, and returns the first entry found.
//
// If user is AllUsers every user directory upon the drive is searched,
// as if FindFirstAllUsers had been called.
//
// When wantDirEntries is false one entry is returned per file, without
// the extent bookkeeping.
func (s *Searcher) FindFirst(drive uint8, user uint8, name [8]uint8, typ [3]uint8, wantDirEntries bool) (*Session, fcb.DirEntry, error) {

	if user == AllUsers {
		return s.FindFirstAllUsers(drive, name, typ, wantDirEntries)
	}

	sess := &Session{
		s:              s,
		drive:          drive,
		user:           user,
		name:           name,
		typ:            typ,
		wantDirEntries: wantDirEntries,
	}
	sess.openDir(s.disks.Resolve(drive, user), user)

	entry, err := sess.FindNext()
	return sess, entry, err
}

// FindFirstAllUsers starts a search of every user directory upon the
// given drive, and returns the first entry found.
//
// User directories are visited in order, anything which isn't named
// with a single hex digit is ignored.
func (s *Searcher) FindFirstAllUsers(drive uint8, name [8]uint8, typ [3]uint8, wantDirEntries bool) (*Session, fcb.DirEntry, error) {

	sess := &Session{
		s:              s,
		drive:          drive,
		name:           name,
		typ:            typ,
		wantDirEntries: wantDirEntries,
		allUsers:       true,
	}

	top := s.disks.DrivePath(drive)

	entries, err := afero.ReadDir(s.disks.Fs, top)
	if err != nil {
		s.Logger.Debug("failed to read drive",
			slog.String("path", top),
			slog.String("error", err.Error()))
	}
	for _, e := range entries {
		if _, ok := disk.ParseUserDir(e.Name()); ok && e.IsDir() {
			sess.users = append(sess.users, e)
		}
	}

	entry, err := sess.FindNextAllUsers()
	return sess, entry, err
}

// FindNext returns the next entry of the search.
//
// ErrNoMoreFiles is returned once the search is exhausted, and for every
// call after that.
func (sess *Session) FindNext() (fcb.DirEntry, error) {
	if sess == nil {
		return fcb.DirEntry{}, ErrNoMoreFiles
	}
	if sess.allUsers {
		return sess.FindNextAllUsers()
	}
	return sess.next()
}

// FindNextAllUsers returns the next entry of a search across all users.
func (sess *Session) FindNextAllUsers() (fcb.DirEntry, error) {
	if sess == nil {
		return fcb.DirEntry{}, ErrNoMoreFiles
	}
	if !sess.allUsers {
		return sess.next()
	}

	for {
		if sess.open {
			entry, err := sess.next()
			if err == nil {
				return entry, nil
			}
			sess.open = false
		}

		if sess.userOffset >= len(sess.users) {
			return fcb.DirEntry{}, ErrNoMoreFiles
		}

		d := sess.users[sess.userOffset]
		sess.userOffset++

		user, _ := disk.ParseUserDir(d.Name())
		sess.openDir(filepath.Join(sess.s.disks.DrivePath(sess.drive), d.Name()), user)
	}
}

// Drive returns the drive being searched.
func (sess *Session) Drive() uint8 {
	return sess.drive
}

// User returns the user whose directory is being searched.
func (sess *Session) User() uint8 {
	return sess.user
}

// openDir starts listing the given directory.
//
// A directory which can't be read is treated as being empty.
func (sess *Session) openDir(dir string, user uint8) {
	sess.dir = dir
	sess.user = user
	sess.offset = 0
	sess.records = 0
	sess.open = true
	sess.seen = make(map[string]bool)

	files, err := afero.ReadDir(sess.s.disks.Fs, dir)
	if err != nil {
		sess.s.Logger.Debug("failed to read directory",
			slog.String("path", dir),
			slog.String("error", err.Error()))
	}
	sess.files = files
}

// next returns the next entry from the current directory.
func (sess *Session) next() (fcb.DirEntry, error) {

	// Still reporting the extents of the last file?
	if sess.wantDirEntries && sess.records > 0 {
		return sess.synthesize(), nil
	}

	for sess.offset < len(sess.files) {
		fi := sess.files[sess.offset]
		sess.offset++

		if fi.IsDir() {
			continue
		}

		host := strings.ToUpper(fi.Name())
		if !fcb.ValidHostName(host) || sess.seen[host] {
			continue
		}

		name, typ := fcb.FromHostName(host)
		if !fcb.Match(name, typ, sess.name, sess.typ) {
			continue
		}

		// The listing might be stale, so get the current size.
		path := filepath.Join(sess.dir, fi.Name())
		st, err := sess.s.disks.Fs.Stat(path)
		if err != nil {
			sess.s.Logger.Debug("file vanished during search",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}

		sess.seen[host] = true
		sess.host = host
		sess.extent = 0
		sess.flags = fcb.Flags{ReadOnly: st.Mode().Perm()&0200 == 0}

		sess.s.Logger.Debug("search match",
			slog.String("path", path),
			slog.Int64("size", st.Size()))

		if !sess.wantDirEntries {
			sess.records = 0
			entry := fcb.NewDirEntry(sess.user, host)
			entry.SetFlags(sess.flags)
			return entry, nil
		}

		// Round up to the next whole record
		size := st.Size()
		sess.records = int(size / disk.BlockSize)
		if size%disk.BlockSize != 0 {
			sess.records++
		}

		return sess.synthesize(), nil
	}

	return fcb.DirEntry{}, ErrNoMoreFiles
}

// synthesize returns the directory entry for the next extent of the
// current file, and updates the count of records still to report.
func (sess *Session) synthesize() fcb.DirEntry {
	rc := sess.records
	if rc > sess.s.extentRecords {
		rc = sess.s.extentRecords
	}

	entry := fcb.NewDirEntry(sess.user, sess.host)
	entry.SetFlags(sess.flags)
	entry.SetExtent(sess.extent)
	entry.RC = uint8(rc)
	entry.SetAllocation(rc)

	sess.records -= rc
	sess.extent++

	return entry
}
