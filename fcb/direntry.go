package fcb

// DirEntrySize is the size of a CP/M directory entry, in bytes.
const DirEntrySize = 32

// RecordsPerBlock is the number of records in one (1K) allocation block.
const RecordsPerBlock = 8

// FirstAllocBlock is the first block number we place in the allocation
// list of the directory entries we synthesize.
//
// Blocks 0 and 1 hold the directory on a real CP/M disk.
const FirstAllocBlock = 2

// DirEntry is a CP/M directory entry, which is the same shape as an FCB
// without the four bytes used for tracking the read/write position.
//
// There is no directory on the host to read these from, instead they
// are made up from the size of the host file each time one is wanted.
type DirEntry struct {
	// User holds the user-number which owns the file.
	User uint8

	// Name holds the name of the file.
	Name [8]uint8

	// Type holds the suffix, and the attribute bits.
	Type [3]uint8

	Ex uint8
	S1 uint8
	S2 uint8
	RC uint8
	Al [16]uint8
}

// NewDirEntry returns an entry for the given host file.
func NewDirEntry(user uint8, host string) DirEntry {
	name, typ := FromHostName(host)

	return DirEntry{
		User: user,
		Name: name,
		Type: typ,
	}
}

// GetFileName returns the host name of the file this entry describes.
func (d *DirEntry) GetFileName() string {
	name, _ := HostName(d.Name, d.Type)
	return name
}

// GetFlags returns the attributes stored in the type field.
func (d *DirEntry) GetFlags() Flags {
	return flagsFromType(d.Type)
}

// SetFlags stores the given attributes in the type field.
func (d *DirEntry) SetFlags(flags Flags) {
	d.Type = flags.apply(d.Type)
}

// SetExtent stores the given extent index in the ex and s2 fields.
func (d *DirEntry) SetExtent(index int) {
	d.Ex = uint8(index % (MaxEX + 1))
	d.S2 = uint8(index / (MaxEX + 1))
}

// GetExtent returns the extent index stored in the ex and s2 fields.
func (d *DirEntry) GetExtent() int {
	return int(d.S2)*(MaxEX+1) + int(d.Ex)
}

// SetAllocation fills the allocation list with placeholder block numbers,
// one for each allocation block the given number of records would use.
//
// The host owns the real allocation, but programs like STAT count the
// non-zero entries to work out how large a file is.
func (d *DirEntry) SetAllocation(records int) {
	for i := range d.Al {
		d.Al[i] = 0x00
	}

	blocks := records / RecordsPerBlock
	if records%RecordsPerBlock != 0 {
		blocks++
	}

	for i := 0; i < blocks && i < len(d.Al); i++ {
		d.Al[i] = uint8(FirstAllocBlock + i)
	}
}

// AsBytes returns the entry in a format suitable for copying to RAM.
func (d *DirEntry) AsBytes() []uint8 {

	var r []uint8

	r = append(r, d.User)
	r = append(r, d.Name[:]...)
	r = append(r, d.Type[:]...)
	r = append(r, d.Ex)
	r = append(r, d.S1)
	r = append(r, d.S2)
	r = append(r, d.RC)
	r = append(r, d.Al[:]...)

	return r
}

// DirEntryFromBytes returns a directory entry from the given bytes.
func DirEntryFromBytes(bytes []uint8) DirEntry {
	tmp := DirEntry{}

	tmp.User = bytes[0]
	copy(tmp.Name[:], bytes[1:])
	copy(tmp.Type[:], bytes[9:])
	tmp.Ex = bytes[12]
	tmp.S1 = bytes[13]
	tmp.S2 = bytes[14]
	tmp.RC = bytes[15]
	copy(tmp.Al[:], bytes[16:])

	return tmp
}
