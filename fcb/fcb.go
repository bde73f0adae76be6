// Package fcb contains helpers for reading, writing, and working with the
// CP/M FCB structure, and the directory entries we synthesize from host files.
package fcb

import (
	"strings"
)

// SIZE contains the size of the FCB structure, in bytes.
const SIZE = 36

// RecordsPerExtent is the number of 128-byte records a logical FCB
// extent addresses.
const RecordsPerExtent = 128

// MaxEX is the largest value the ex field takes before s2 is bumped.
const MaxEX = 31

// MaxS2 masks the bits of s2 which count extents.
const MaxS2 = 0x0F

// FCB is the File Control Block which CP/M programs pass to the BDOS.
//
// The layout is exactly that of the structure in RAM, see AsBytes.
type FCB struct {
	// Drive holds the drive for this entry.
	//
	// 0 means the current drive, 1 is A:, 2 is B:, etc.
	Drive uint8

	// Name holds the name of the file.
	Name [8]uint8

	// Type holds the suffix.
	//
	// The high bits of the three bytes are the read-only, system,
	// and archive flags.
	Type [3]uint8

	Ex uint8
	S1 uint8
	S2 uint8
	RC uint8
	Al [16]uint8
	Cr uint8 // FCB_CURRENT_RECORD_OFFSET
	R0 uint8 // FCB_RANDOM_RECORD_OFFSET
	R1 uint8
	R2 uint8
}

// GetName returns the name component of an FCB entry.
func (f *FCB) GetName() string {
	return fieldString(f.Name[:])
}

// GetType returns the type/extension component of an FCB entry.
func (f *FCB) GetType() string {
	return fieldString(f.Type[:])
}

// GetFileName returns the name of the file this FCB refers to, in the
// form used upon the host ("NAME.TYP").
func (f *FCB) GetFileName() string {
	name, _ := HostName(f.Name, f.Type)
	return name
}

// GetFlags returns the attributes stored in the type field.
func (f *FCB) GetFlags() Flags {
	return flagsFromType(f.Type)
}

// SetFlags stores the given attributes in the type field.
func (f *FCB) SetFlags(flags Flags) {
	f.Type = flags.apply(f.Type)
}

// DoesMatch returns true if the given filename matches the (wildcard)
// name stored in this FCB.
//
// The filename may carry a drive-prefix, which is ignored.
func (f *FCB) DoesMatch(name string) bool {
	tmp := FromString(name)
	return Match(tmp.Name, tmp.Type, f.Name, f.Type)
}

// GetSequentialRecord returns the record number addressed by the
// ex, s2, and cr fields.
func (f *FCB) GetSequentialRecord() int {
	extent := int(f.S2&MaxS2)*(MaxEX+1) + int(f.Ex&MaxEX)
	return extent*RecordsPerExtent + int(f.Cr)
}

// GetSequentialOffset returns the byte offset the next sequential
// read or write should take place at.
func (f *FCB) GetSequentialOffset() int64 {
	return int64(f.GetSequentialRecord()) * 128
}

// SetSequentialRecord updates the ex, s2, and cr fields to point to
// the given record.
func (f *FCB) SetSequentialRecord(record int) {
	f.Cr = uint8(record % RecordsPerExtent)
	extent := record / RecordsPerExtent
	f.Ex = uint8(extent % (MaxEX + 1))
	f.S2 = uint8(extent / (MaxEX + 1))
}

// IncreaseSequentialOffset moves the sequential position on by one record.
func (f *FCB) IncreaseSequentialOffset() {
	f.SetSequentialRecord(f.GetSequentialRecord() + 1)
}

// GetRandomRecord returns the record number stored in r0, r1, and r2.
func (f *FCB) GetRandomRecord() int {
	return int(f.R2)<<16 | int(f.R1)<<8 | int(f.R0)
}

// SetRandomRecord stores the given record number in r0, r1, and r2.
func (f *FCB) SetRandomRecord(record int) {
	f.R0 = uint8(record & 0xFF)
	f.R1 = uint8(record >> 8)
	f.R2 = uint8(record >> 16)
}

// AsBytes returns the entry of the FCB in a format suitable
// for copying to RAM.
func (f *FCB) AsBytes() []uint8 {

	var r []uint8

	r = append(r, f.Drive)
	r = append(r, f.Name[:]...)
	r = append(r, f.Type[:]...)
	r = append(r, f.Ex)
	r = append(r, f.S1)
	r = append(r, f.S2)
	r = append(r, f.RC)
	r = append(r, f.Al[:]...)
	r = append(r, f.Cr)
	r = append(r, f.R0)
	r = append(r, f.R1)
	r = append(r, f.R2)

	return r
}

// FromString returns an FCB entry from the given string.
//
// This is used for processing command-line arguments, so "*" is
// expanded to the appropriate number of "?" characters.
func FromString(str string) FCB {

	// Return value
	tmp := FCB{}

	// Filenames are always upper-case
	str = strings.ToUpper(str)

	// Does the string have a drive-prefix?
	if len(str) >= 2 && str[1] == ':' {
		tmp.Drive = str[0] - 'A' + 1
		str = str[2:]
	}

	name, ext, _ := strings.Cut(str, ".")

	copy(tmp.Name[:], expand(name, 8))
	copy(tmp.Type[:], expand(ext, 3))

	return tmp
}

// expand pads the value to the given width, converting "*" to a run
// of "?" which fills the rest of the field.
func expand(value string, width int) string {
	t := ""

	for _, c := range value {
		if c == '*' {
			t += strings.Repeat("?", width)
			break
		}
		t += string(c)
	}

	for len(t) < width {
		t += " "
	}

	// Truncate, if the value was too long.
	return t[:width]
}

// FromBytes returns an FCB entry from the given bytes
func FromBytes(bytes []uint8) FCB {
	// Return value
	tmp := FCB{}

	tmp.Drive = bytes[0]
	copy(tmp.Name[:], bytes[1:])
	copy(tmp.Type[:], bytes[9:])
	tmp.Ex = bytes[12]
	tmp.S1 = bytes[13]
	tmp.S2 = bytes[14]
	tmp.RC = bytes[15]
	copy(tmp.Al[:], bytes[16:])
	tmp.Cr = bytes[32]
	tmp.R0 = bytes[33]
	tmp.R1 = bytes[34]
	tmp.R2 = bytes[35]

	return tmp
}

// fieldString returns the characters of a name or type field with
// the attribute bits, and the padding, removed.
func fieldString(field []uint8) string {
	t := ""

	for _, c := range field {
		c &= 0x7F
		if c != 0x00 {
			t += string(c)
		}
	}
	return strings.TrimRight(t, " ")
}
