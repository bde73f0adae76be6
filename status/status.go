// Package status contains the result codes our storage operations return.
//
// Internally everything branches upon the Code type, the raw numbers which
// CP/M programs expect to find in the A register only appear in the
// mapping table within this file.
package status

import "fmt"

// Code is the outcome of a storage operation.
type Code int

const (
	// Success means the operation completed.
	Success Code = iota

	// UnwrittenData means a read found no data at the given position.
	UnwrittenData

	// SeekFailed means a sequential write could not position itself.
	SeekFailed

	// UnwrittenExtent means a random read was beyond any extent the
	// file has ever had.
	UnwrittenExtent

	// SeekPastMax means the position was past the largest possible
	// CP/M file (8Mb).
	SeekPastMax

	// FileNotFound means the host file could not be opened.
	FileNotFound

	// NoMatch means a directory search found nothing (more).
	NoMatch

	// InvalidDrive means a drive number outside 1-16 was given.
	InvalidDrive

	// DriveExists means the drive directory was already present.
	DriveExists

	// ProvisionFailed means creating a drive failed for another reason.
	ProvisionFailed

	// WriteFailed means a block could not be written in full.
	WriteFailed
)

// wire is the single place where our codes are mapped to the values
// the BDOS calling convention uses.
var wire = map[Code]uint8{
	Success:         0x00,
	UnwrittenData:   0x01,
	SeekFailed:      0x01,
	UnwrittenExtent: 0x04,
	SeekPastMax:     0x06,
	FileNotFound:    0x10,
	NoMatch:         0xFF,
	InvalidDrive:    0xFF,
	DriveExists:     0xFE,

	// Creating the drive directory has one failure path, whatever the
	// cause, so the caller sees the same byte as for an existing drive.
	ProvisionFailed: 0xFE,
	WriteFailed:     0xFF,
}

var names = map[Code]string{
	Success:         "Success",
	UnwrittenData:   "UnwrittenData",
	SeekFailed:      "SeekFailed",
	UnwrittenExtent: "UnwrittenExtent",
	SeekPastMax:     "SeekPastMax",
	FileNotFound:    "FileNotFound",
	NoMatch:         "NoMatch",
	InvalidDrive:    "InvalidDrive",
	DriveExists:     "DriveExists",
	ProvisionFailed: "ProvisionFailed",
	WriteFailed:     "WriteFailed",
}

// Wire returns the byte a CP/M program expects to see for this code.
//
// Unknown codes are reported as 0xFF, the generic BDOS failure.
func (c Code) Wire() uint8 {
	v, ok := wire[c]
	if !ok {
		return 0xFF
	}
	return v
}

// String returns the name of the code, for logging.
func (c Code) String() string {
	n, ok := names[c]
	if !ok {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return n
}

// OK returns true if the code signals success.
func (c Code) OK() bool {
	return c == Success
}
