// Package cpm is the BDOS boundary of our storage emulation.
//
// CP/M programs invoke the BDOS with the function number in the C
// register and the address of an FCB, or some other parameter, in DE.
// Results are returned in A, and mirrored in L.  This package holds the
// registers, the 64k of RAM the FCBs and DMA area live within, and the
// table of file-related syscalls, which are implemented upon the disk,
// dirsearch, and recordio packages.
package cpm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koron-go/z80"
	"github.com/skx/cpmhostfs/dirsearch"
	"github.com/skx/cpmhostfs/disk"
	"github.com/skx/cpmhostfs/fcb"
	"github.com/skx/cpmhostfs/memory"
	"github.com/skx/cpmhostfs/recordio"
	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/afero"
)

var (
	// ErrUnimplemented will be used to handle a CP/M binary calling an unimplemented syscall.
	//
	// It should be handled and expected by callers.
	ErrUnimplemented = errors.New("UNIMPLEMENTED")
)

// The BDOS functions we implement.
const (
	DriveAllReset  = 13
	DriveSet       = 14
	FileOpen       = 15
	FileClose      = 16
	FindFirst      = 17
	FindNext       = 18
	FileDelete     = 19
	FileRead       = 20
	FileWrite      = 21
	FileMake       = 22
	FileRename     = 23
	DriveGet       = 25
	SetDMA         = 26
	UserNumber     = 32
	FileReadRand   = 33
	FileWriteRand  = 34
	FileSize       = 35
	FileRandRecord = 36
	FileTruncate   = 99
)

// DefaultDMA is the address of the DMA area after a reset.
const DefaultDMA = 0x0080

// CPMHandlerType contains the signature of a CP/M bdos function.
type CPMHandlerType func(cpm *CPM) error

// CPMHandler contains details of a specific call we implement.
//
// While we mostly need a "number to handler", mapping having a name
// is useful for the logs we produce.
type CPMHandler struct {
	// Desc contain the human-readable description of the given CP/M syscall.
	Desc string

	// Handler contains the function which should be involved for this syscall.
	Handler CPMHandlerType
}

// CPM is the object that holds our emulator state
type CPM struct {

	// Syscalls contains the syscalls we know how to emulate, indexed
	// by their ID.
	Syscalls map[uint8]CPMHandler

	// Memory contains the memory the system runs with.
	Memory *memory.Memory

	// CPU holds the registers syscalls receive their arguments in,
	// and return their results in.
	CPU z80.CPU

	// Logger holds a logger which we use for debugging and diagnostics.
	Logger *slog.Logger

	// dma contains the offset of the DMA area which is used
	// for block I/O.
	dma uint16

	// currentDrive contains the currently selected drive.
	// Valid values are 00-15, where
	// 0  -> A:
	// 1  -> B:
	// 15 -> P:
	currentDrive uint8

	// userNumber contains the current user number.
	//
	// Valid values are 00-15
	userNumber uint8

	// fs is the host filesystem our drives live within.
	fs afero.Fs

	// extentRecords is the number of records reported in each
	// directory entry.
	extentRecords int

	// disks maps drives and users to directories.
	disks *disk.Layout

	// search performs directory searches.
	search *dirsearch.Searcher

	// session is the search "find next" continues.
	//
	// It is replaced by every "find first".
	session *dirsearch.Session

	// records moves records between files and RAM.
	records *recordio.RecordIO

	// mu serializes calls into the BDOS.
	mu sync.Mutex
}

// cpmoption defines an option that can be applied to the emulator.
type cpmoption func(c *CPM) error

// WithFilesystem sets the filesystem our drives live upon.
//
// Production use will be a BasePathFs rooted at the top of the drive
// hierarchy, tests use memory-backed filesystems.
func WithFilesystem(fs afero.Fs) cpmoption {
	return func(c *CPM) error {
		if fs == nil {
			return fmt.Errorf("nil filesystem")
		}
		c.fs = fs
		return nil
	}
}

// WithLogger sets the logger to use.
func WithLogger(logger *slog.Logger) cpmoption {
	return func(c *CPM) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

// WithExtentRecords sets the number of records in one directory entry.
//
// CP/M 2.2 uses 128, a 16k extent.
func WithExtentRecords(n int) cpmoption {
	return func(c *CPM) error {
		if n < 1 || n > fcb.RecordsPerExtent {
			return fmt.Errorf("extent size %d out of range 1-%d", n, fcb.RecordsPerExtent)
		}
		c.extentRecords = n
		return nil
	}
}

// New returns a new emulation object.
func New(options ...cpmoption) (*CPM, error) {

	//
	// Create and populate our syscall table
	//
	sys := make(map[uint8]CPMHandler)
	sys[DriveAllReset] = CPMHandler{
		Desc:    "DRV_ALLRESET",
		Handler: BdosSysCallDriveAllReset,
	}
	sys[DriveSet] = CPMHandler{
		Desc:    "DRV_SET",
		Handler: BdosSysCallDriveSet,
	}
	sys[FileOpen] = CPMHandler{
		Desc:    "F_OPEN",
		Handler: BdosSysCallFileOpen,
	}
	sys[FileClose] = CPMHandler{
		Desc:    "F_CLOSE",
		Handler: BdosSysCallFileClose,
	}
	sys[FindFirst] = CPMHandler{
		Desc:    "F_SFIRST",
		Handler: BdosSysCallFindFirst,
	}
	sys[FindNext] = CPMHandler{
		Desc:    "F_SNEXT",
		Handler: BdosSysCallFindNext,
	}
	sys[FileDelete] = CPMHandler{
		Desc:    "F_DELETE",
		Handler: BdosSysCallDeleteFile,
	}
	sys[FileRead] = CPMHandler{
		Desc:    "F_READ",
		Handler: BdosSysCallRead,
	}
	sys[FileWrite] = CPMHandler{
		Desc:    "F_WRITE",
		Handler: BdosSysCallWrite,
	}
	sys[FileMake] = CPMHandler{
		Desc:    "F_MAKE",
		Handler: BdosSysCallMakeFile,
	}
	sys[FileRename] = CPMHandler{
		Desc:    "F_RENAME",
		Handler: BdosSysCallRenameFile,
	}
	sys[DriveGet] = CPMHandler{
		Desc:    "DRV_GET",
		Handler: BdosSysCallDriveGet,
	}
	sys[SetDMA] = CPMHandler{
		Desc:    "F_DMAOFF",
		Handler: BdosSysCallSetDMA,
	}
	sys[UserNumber] = CPMHandler{
		Desc:    "F_USERNUM",
		Handler: BdosSysCallUserNumber,
	}
	sys[FileReadRand] = CPMHandler{
		Desc:    "F_READRAND",
		Handler: BdosSysCallReadRand,
	}
	sys[FileWriteRand] = CPMHandler{
		Desc:    "F_WRITERAND",
		Handler: BdosSysCallWriteRand,
	}
	sys[FileSize] = CPMHandler{
		Desc:    "F_SIZE",
		Handler: BdosSysCallFileSize,
	}
	sys[FileRandRecord] = CPMHandler{
		Desc:    "F_RANDREC",
		Handler: BdosSysCallRandRecord,
	}
	sys[FileTruncate] = CPMHandler{
		Desc:    "F_TRUNCATE",
		Handler: BdosSysCallTruncate,
	}

	// Create the object
	tmp := &CPM{
		Syscalls:      sys,
		Memory:        new(memory.Memory),
		Logger:        slog.Default(),
		dma:           DefaultDMA,
		extentRecords: dirsearch.DefaultExtentRecords,
	}

	for _, opt := range options {
		err := opt(tmp)
		if err != nil {
			return nil, err
		}
	}

	if tmp.fs == nil {
		tmp.fs = afero.NewOsFs()
	}

	// The CPU shares our RAM, though we never run it.
	tmp.CPU = z80.CPU{
		Memory: tmp.Memory,
	}

	tmp.disks = disk.New(tmp.fs, tmp.Logger)
	tmp.search = dirsearch.New(tmp.disks,
		dirsearch.WithExtentRecords(tmp.extentRecords),
		dirsearch.WithLogger(tmp.Logger))
	tmp.records = recordio.New(tmp.fs, tmp.Memory,
		recordio.WithExtentRecords(tmp.extentRecords),
		recordio.WithLogger(tmp.Logger))

	return tmp, nil
}

// Dispatch invokes the syscall whose number is in the C register.
//
// Calls are serialized, only one may be in progress at a time.
func (cpm *CPM) Dispatch() error {
	cpm.mu.Lock()
	defer cpm.mu.Unlock()

	return cpm.dispatch()
}

// Call sets up the registers for the given syscall and parameter, then
// dispatches it, returning the contents of the A register.
func (cpm *CPM) Call(syscall uint8, de uint16) (uint8, error) {
	cpm.mu.Lock()
	defer cpm.mu.Unlock()

	cpm.CPU.States.BC.Lo = syscall
	cpm.CPU.States.DE.SetU16(de)

	err := cpm.dispatch()
	return cpm.CPU.States.AF.Hi, err
}

// dispatch runs the syscall in C, the caller holds the lock.
func (cpm *CPM) dispatch() error {

	syscall := cpm.CPU.States.BC.Lo

	//
	// Is there a syscall entry for this number?
	//
	handler, exists := cpm.Syscalls[syscall]
	if !exists {
		cpm.Logger.Error("Unimplemented SysCall",
			slog.Int("syscall", int(syscall)),
			slog.String("syscallHex",
				fmt.Sprintf("0x%02X", syscall)),
		)
		return ErrUnimplemented
	}

	// Log the call we're going to make
	cpm.Logger.Info("SysCall",
		slog.String("name", handler.Desc),
		slog.Int("syscall", int(syscall)),
		slog.String("syscallHex",
			fmt.Sprintf("0x%02X", syscall)),
	)

	return handler.Handler(cpm)
}

// MakeDisk creates the directories for a new drive, 1 for A: to 16 for P:.
func (cpm *CPM) MakeDisk(drive uint8) status.Code {
	cpm.mu.Lock()
	defer cpm.mu.Unlock()

	err := cpm.disks.MakeDisk(drive)
	switch {
	case err == nil:
		return status.Success
	case errors.Is(err, disk.ErrInvalidDrive):
		return status.InvalidDrive
	case errors.Is(err, disk.ErrDriveExists):
		return status.DriveExists
	}

	cpm.Logger.Debug("failed to make disk",
		slog.Int("drive", int(drive)),
		slog.String("error", err.Error()))
	return status.ProvisionFailed
}

// MakeUserDir creates the directory for a user upon an existing drive.
func (cpm *CPM) MakeUserDir(drive uint8, user uint8) error {
	cpm.mu.Lock()
	defer cpm.mu.Unlock()

	if drive < 1 || drive > disk.MaxDrive {
		return disk.ErrInvalidDrive
	}
	if user > disk.MaxUser {
		return fmt.Errorf("user %d out of range", user)
	}
	return cpm.disks.MakeUserDir(drive, user)
}

// GetDMA returns the address of the DMA area.
func (cpm *CPM) GetDMA() uint16 {
	return cpm.dma
}

// GetCurrentDrive returns the selected drive, 0 for A:.
func (cpm *CPM) GetCurrentDrive() uint8 {
	return cpm.currentDrive
}

// GetUserNumber returns the current user-number.
func (cpm *CPM) GetUserNumber() uint8 {
	return cpm.userNumber
}

// readFCB returns the address of the FCB pointed to by DE, and its
// contents.
func (cpm *CPM) readFCB() (uint16, fcb.FCB) {
	ptr := cpm.CPU.States.DE.U16()
	return ptr, fcb.FromBytes(cpm.Memory.GetRange(ptr, fcb.SIZE))
}

// fcbDrive returns the drive, 1-16, an FCB refers to.
//
// A drive of zero means the current drive.
func (cpm *CPM) fcbDrive(f *fcb.FCB) uint8 {
	if f.Drive >= 1 && f.Drive <= disk.MaxDrive {
		return f.Drive
	}
	return cpm.currentDrive + 1
}

// hostPath returns the host path of the file an FCB refers to.
func (cpm *CPM) hostPath(f *fcb.FCB) string {
	return cpm.disks.HostPath(cpm.fcbDrive(f), cpm.userNumber, f.GetFileName())
}

// result stores a return value in A and L, clearing B and H.
func (cpm *CPM) result(v uint8) {
	cpm.CPU.States.HL.Hi = 0x00
	cpm.CPU.States.HL.Lo = v
	cpm.CPU.States.BC.Hi = 0x00
	cpm.CPU.States.AF.Hi = v
}

// updateRAM stores the drive and user in the byte at 0x0004, where the
// CCP expects to find them.
func (cpm *CPM) updateRAM() {
	cpm.Memory.Set(0x0004, (cpm.userNumber<<4 | cpm.currentDrive))
}
