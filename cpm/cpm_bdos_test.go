package cpm

import (
	"bytes"
	"testing"

	"github.com/skx/cpmhostfs/fcb"
	"github.com/spf13/afero"
)

// fcbAddr is where our tests place their FCBs.
const fcbAddr = 0x005C

// setFCB stores the FCB for the given name in RAM.
func setFCB(c *CPM, name string) {
	f := fcb.FromString(name)
	c.Memory.SetRange(fcbAddr, f.AsBytes()...)
}

// getFCB returns the FCB from RAM.
func getFCB(c *CPM) *fcb.FCB {
	f := fcb.FromBytes(c.Memory.GetRange(fcbAddr, fcb.SIZE))
	return &f
}

// call invokes the syscall with DE pointing at our FCB, and returns A.
func call(t *testing.T, c *CPM, syscall uint8) uint8 {
	t.Helper()

	ret, err := c.Call(syscall, fcbAddr)
	if err != nil {
		t.Fatalf("error calling syscall %d: %s", syscall, err)
	}
	if c.CPU.States.HL.Lo != ret || c.CPU.States.HL.Hi != 0 || c.CPU.States.BC.Hi != 0 {
		t.Fatalf("syscall %d: result not mirrored in HL/B", syscall)
	}
	return ret
}

func TestDriveGetSet(t *testing.T) {

	c, _ := newTestCPM(t)

	ret, _ := c.Call(DriveGet, 0)
	if ret != 0 {
		t.Fatalf("initial drive should be A:, got %d", ret)
	}

	ret, _ = c.Call(DriveSet, 3)
	if ret != 0 {
		t.Fatalf("setting a drive failed")
	}
	ret, _ = c.Call(DriveGet, 0)
	if ret != 3 || c.GetCurrentDrive() != 3 {
		t.Fatalf("setting the drive failed got %d", ret)
	}

	// bogus values are rejected, leaving the drive alone
	ret, _ = c.Call(DriveSet, 16)
	if ret != 0xFF {
		t.Fatalf("expected failure selecting drive 16")
	}
	ret, _ = c.Call(DriveGet, 0)
	if ret != 3 {
		t.Fatalf("drive changed by bogus selection: %d", ret)
	}
}

func TestSetDMA(t *testing.T) {

	c, fs := newTestCPM(t)

	if c.GetDMA() != 0x80 {
		t.Fatalf("bogus initial DMA")
	}

	c.Call(SetDMA, 0x2000)
	if c.GetDMA() != 0x2000 {
		t.Fatalf("failed to update dma")
	}

	// Search results land in the new area
	afero.WriteFile(fs, "A/0/HELLO.TXT", []byte("hi"), 0644)
	setFCB(c, "*.*")
	if call(t, c, FindFirst) != 0x00 {
		t.Fatalf("search failed")
	}
	ent := fcb.DirEntryFromBytes(c.Memory.GetRange(0x2000, fcb.DirEntrySize))
	if ent.GetFileName() != "HELLO.TXT" {
		t.Fatalf("wrong entry at DMA: %s", ent.GetFileName())
	}
}

func TestUserNumber(t *testing.T) {

	c, _ := newTestCPM(t)

	c.Call(DriveSet, 2)

	// set to user 5
	ret, _ := c.Call(UserNumber, 5)
	if ret != 5 || c.GetUserNumber() != 5 {
		t.Fatalf("failed to set user number")
	}

	// now get properly
	ret, _ = c.Call(UserNumber, 0xFF)
	if ret != 5 {
		t.Fatalf("retrieving user number failed")
	}

	// masked
	ret, _ = c.Call(UserNumber, 0x13)
	if ret != 3 {
		t.Fatalf("user number not masked, got %d", ret)
	}

	if c.Memory.Get(0x0004) != 0x32 {
		t.Fatalf("drive/user byte wrong %02X", c.Memory.Get(0x0004))
	}
}

func TestDriveReset(t *testing.T) {

	c, fs := newTestCPM(t)

	c.Call(DriveSet, 4)
	c.Call(SetDMA, 0x3000)

	ret, _ := c.Call(DriveAllReset, 0)
	if ret != 0x00 {
		t.Fatalf("reset returned %02X", ret)
	}
	if c.GetCurrentDrive() != 0 || c.GetDMA() != DefaultDMA {
		t.Fatalf("reset didn't reset")
	}

	// A submit file triggers the CCP behaviour
	afero.WriteFile(fs, "A/0/$$$.SUB", []byte{}, 0644)
	ret, _ = c.Call(DriveAllReset, 0)
	if ret != 0xFF {
		t.Fatalf("reset with $$$.SUB returned %02X", ret)
	}

	// but only for the current user
	c.Call(UserNumber, 1)
	ret, _ = c.Call(DriveAllReset, 0)
	if ret != 0x00 {
		t.Fatalf("reset for user 1 returned %02X", ret)
	}
}

func TestMakeWriteRead(t *testing.T) {

	c, fs := newTestCPM(t)

	setFCB(c, "B:HELLO.TXT")
	if call(t, c, FileMake) != 0x00 {
		t.Fatalf("failed to make file")
	}

	// Write three records
	for i := 0; i < 3; i++ {
		c.Memory.FillRange(DefaultDMA, 128, uint8('a'+i))
		if call(t, c, FileWrite) != 0x00 {
			t.Fatalf("failed to write record %d", i)
		}
	}

	f := getFCB(c)
	if f.GetSequentialRecord() != 3 || f.RC != 3 {
		t.Fatalf("FCB not updated, cr=%d rc=%d", f.Cr, f.RC)
	}
	if call(t, c, FileClose) != 0x00 {
		t.Fatalf("failed to close file")
	}

	data, err := afero.ReadFile(fs, "B/0/HELLO.TXT")
	if err != nil {
		t.Fatalf("file not on host: %s", err)
	}
	if len(data) != 384 || data[0] != 'a' || data[200] != 'b' || data[383] != 'c' {
		t.Fatalf("host file has the wrong contents")
	}

	// Reopen with a fresh FCB
	setFCB(c, "B:HELLO.TXT")
	if call(t, c, FileOpen) != 0x00 {
		t.Fatalf("failed to open file")
	}
	if getFCB(c).RC != 3 {
		t.Fatalf("wrong record count %d", getFCB(c).RC)
	}

	for i := 0; i < 3; i++ {
		if call(t, c, FileRead) != 0x00 {
			t.Fatalf("failed to read record %d", i)
		}
		if c.Memory.Get(DefaultDMA+127) != uint8('a'+i) {
			t.Fatalf("record %d has the wrong contents", i)
		}
	}

	// End of file
	if call(t, c, FileRead) != 0x01 {
		t.Fatalf("expected EOF")
	}
	eof := bytes.Repeat([]byte{0x1A}, 128)
	if !bytes.Equal(c.Memory.GetRange(DefaultDMA, 128), eof) {
		t.Fatalf("DMA not filled at EOF")
	}
	if getFCB(c).GetSequentialRecord() != 3 {
		t.Fatalf("position moved on failed read")
	}
}

func TestOpenMissing(t *testing.T) {

	c, fs := newTestCPM(t)

	setFCB(c, "MISSING.TXT")
	if call(t, c, FileOpen) != 0xFF {
		t.Fatalf("opened missing file")
	}
	if call(t, c, FileClose) != 0xFF {
		t.Fatalf("closed missing file")
	}
	if call(t, c, FileRead) != 0x10 {
		t.Fatalf("read missing file")
	}
	if call(t, c, FileSize) != 0xFF {
		t.Fatalf("sized missing file")
	}

	// Files of other users are invisible
	afero.WriteFile(fs, "A/1/MISSING.TXT", []byte("hidden"), 0644)
	if call(t, c, FileOpen) != 0xFF {
		t.Fatalf("opened file of another user")
	}
	c.Call(UserNumber, 1)
	setFCB(c, "MISSING.TXT")
	if call(t, c, FileOpen) != 0x00 {
		t.Fatalf("failed to open file as user 1")
	}
}

func TestLowerCaseHostFile(t *testing.T) {

	c, fs := newTestCPM(t)
	afero.WriteFile(fs, "A/0/readme.txt", []byte("Hello"), 0644)

	setFCB(c, "README.TXT")
	if call(t, c, FileOpen) != 0x00 {
		t.Fatalf("failed to open lower-case file")
	}
	if call(t, c, FileRead) != 0x00 {
		t.Fatalf("failed to read lower-case file")
	}
	if string(c.Memory.GetRange(DefaultDMA, 6)) != "Hello\x1A" {
		t.Fatalf("wrong contents read")
	}
}

func TestFind(t *testing.T) {

	c, fs := newTestCPM(t)

	afero.WriteFile(fs, "A/0/SMALL.TXT", make([]byte, 50), 0644)
	afero.WriteFile(fs, "A/0/MEDIUM.TXT", make([]byte, 300), 0644)
	afero.WriteFile(fs, "A/0/LARGE.COM", make([]byte, 5000), 0644)

	type testcase struct {
		pattern string
		names   []string
	}

	tests := []testcase{
		{"*.*", []string{"LARGE.COM", "LARGE.COM", "LARGE.COM", "MEDIUM.TXT", "SMALL.TXT"}},
		{"*.TXT", []string{"MEDIUM.TXT", "SMALL.TXT"}},
		{"S????.TXT", []string{"SMALL.TXT"}},
		{"*.BAS", []string{}},
	}

	for _, tc := range tests {
		setFCB(c, tc.pattern)

		found := []string{}
		ret := call(t, c, FindFirst)
		for ret == 0x00 {
			ent := fcb.DirEntryFromBytes(c.Memory.GetRange(DefaultDMA, fcb.DirEntrySize))
			found = append(found, ent.GetFileName())
			ret = call(t, c, FindNext)
		}
		if ret != 0xFF {
			t.Fatalf("%s: search ended with %02X", tc.pattern, ret)
		}

		if len(found) != len(tc.names) {
			t.Fatalf("%s: expected %v, got %v", tc.pattern, tc.names, found)
		}
		for i := range found {
			if found[i] != tc.names[i] {
				t.Fatalf("%s: expected %v, got %v", tc.pattern, tc.names, found)
			}
		}
	}

	// Exhausted searches stay exhausted
	if call(t, c, FindNext) != 0xFF {
		t.Fatalf("search restarted")
	}
}

func TestFindNextWithoutFirst(t *testing.T) {

	c, _ := newTestCPM(t)
	if call(t, c, FindNext) != 0xFF {
		t.Fatalf("find next without a search succeeded")
	}
}

func TestFindAllUsers(t *testing.T) {

	c, fs := newTestCPM(t)

	afero.WriteFile(fs, "A/0/ZERO.TXT", []byte("0"), 0644)
	afero.WriteFile(fs, "A/3/THREE.TXT", []byte("3"), 0644)
	afero.WriteFile(fs, "A/F/FIFTEEN.TXT", []byte("F"), 0644)
	afero.WriteFile(fs, "A/backup/IGNORED.TXT", []byte("x"), 0644)

	f := fcb.FromString("*.*")
	f.Drive = '?'
	c.Memory.SetRange(fcbAddr, f.AsBytes()...)

	users := []uint8{}
	ret := call(t, c, FindFirst)
	for ret == 0x00 {
		ent := fcb.DirEntryFromBytes(c.Memory.GetRange(DefaultDMA, fcb.DirEntrySize))
		users = append(users, ent.User)
		ret = call(t, c, FindNext)
	}

	if len(users) != 3 || users[0] != 0 || users[1] != 3 || users[2] != 15 {
		t.Fatalf("wrong users found %v", users)
	}
}

func TestDelete(t *testing.T) {

	c, fs := newTestCPM(t)

	afero.WriteFile(fs, "A/0/ONE.TXT", []byte("1"), 0644)
	afero.WriteFile(fs, "A/0/TWO.TXT", make([]byte, 5000), 0644)
	afero.WriteFile(fs, "A/0/KEEP.COM", []byte("k"), 0644)

	// A search in progress survives a deletion
	setFCB(c, "*.COM")
	call(t, c, FindFirst)

	setFCB(c, "*.TXT")
	if call(t, c, FileDelete) != 0x00 {
		t.Fatalf("delete failed")
	}

	for _, name := range []string{"A/0/ONE.TXT", "A/0/TWO.TXT"} {
		if ok, _ := afero.Exists(fs, name); ok {
			t.Fatalf("failed to delete %s", name)
		}
	}
	if ok, _ := afero.Exists(fs, "A/0/KEEP.COM"); !ok {
		t.Fatalf("deleted the wrong file")
	}

	if call(t, c, FindNext) != 0xFF {
		t.Fatalf("search was disturbed")
	}

	// Nothing left to delete
	if call(t, c, FileDelete) != 0xFF {
		t.Fatalf("delete of nothing succeeded")
	}
}

func TestRename(t *testing.T) {

	c, fs := newTestCPM(t)

	afero.WriteFile(fs, "A/0/BEFORE.TXT", []byte("data"), 0644)
	afero.WriteFile(fs, "A/0/TAKEN.TXT", []byte("other"), 0644)

	rename := func(src, dst string) uint8 {
		setFCB(c, src)
		d := fcb.FromString(dst)
		c.Memory.SetRange(fcbAddr+16, d.AsBytes()...)
		return call(t, c, FileRename)
	}

	if rename("BEFORE.TXT", "AFTER.TXT") != 0x00 {
		t.Fatalf("rename failed")
	}
	if ok, _ := afero.Exists(fs, "A/0/BEFORE.TXT"); ok {
		t.Fatalf("file still exists")
	}
	data, err := afero.ReadFile(fs, "A/0/AFTER.TXT")
	if err != nil || string(data) != "data" {
		t.Fatalf("file rename didn't create it")
	}

	// Destination exists
	if rename("AFTER.TXT", "TAKEN.TXT") != 0xFF {
		t.Fatalf("renamed over an existing file")
	}
	data, _ = afero.ReadFile(fs, "A/0/TAKEN.TXT")
	if string(data) != "other" {
		t.Fatalf("existing file was replaced")
	}

	// Source missing
	if rename("BEFORE.TXT", "NEW.TXT") != 0xFF {
		t.Fatalf("renamed a missing file")
	}
}

func TestRandomAccess(t *testing.T) {

	c, fs := newTestCPM(t)

	setFCB(c, "RANDOM.DAT")
	if call(t, c, FileMake) != 0x00 {
		t.Fatalf("failed to make file")
	}

	setRandom := func(record int) {
		f := getFCB(c)
		f.SetRandomRecord(record)
		c.Memory.SetRange(fcbAddr, f.AsBytes()...)
	}

	// Writing record 100 pads the file with zeros
	c.Memory.FillRange(DefaultDMA, 128, 'R')
	setRandom(100)
	if call(t, c, FileWriteRand) != 0x00 {
		t.Fatalf("random write failed")
	}
	if getFCB(c).GetSequentialRecord() != 100 {
		t.Fatalf("sequential position not updated")
	}

	fi, err := fs.Stat("A/0/RANDOM.DAT")
	if err != nil || fi.Size() != 101*128 {
		t.Fatalf("wrong file size after random write")
	}

	if call(t, c, FileSize) != 0x00 {
		t.Fatalf("failed to size file")
	}
	if getFCB(c).GetRandomRecord() != 101 {
		t.Fatalf("wrong size %d", getFCB(c).GetRandomRecord())
	}

	type testcase struct {
		record int
		ret    uint8
	}

	tests := []testcase{
		{50, 0x00},
		{100, 0x00},
		// inside the last extent
		{105, 0x01},
		// beyond it
		{1000, 0x04},
		{65536, 0x06},
	}

	for _, tc := range tests {
		setRandom(tc.record)
		ret := call(t, c, FileReadRand)
		if ret != tc.ret {
			t.Fatalf("record %d: got %02X, expected %02X", tc.record, ret, tc.ret)
		}
	}

	// The padding is zeros
	setRandom(50)
	call(t, c, FileReadRand)
	if !bytes.Equal(c.Memory.GetRange(DefaultDMA, 128), make([]byte, 128)) {
		t.Fatalf("padding wasn't zeros")
	}

	// and record 100 is ours
	setRandom(100)
	call(t, c, FileReadRand)
	if c.Memory.Get(DefaultDMA) != 'R' {
		t.Fatalf("random record has the wrong contents")
	}

	// Sequential reads continue from the last random one
	if call(t, c, FileRandRecord) != 0x00 {
		t.Fatalf("failed to set random record")
	}
	if getFCB(c).GetRandomRecord() != 100 {
		t.Fatalf("wrong random record %d", getFCB(c).GetRandomRecord())
	}

	setRandom(65536)
	if call(t, c, FileWriteRand) != 0x06 {
		t.Fatalf("wrote past the largest file")
	}
}

func TestFileSize(t *testing.T) {

	c, fs := newTestCPM(t)

	type testcase struct {
		size    int
		records int
	}

	tests := []testcase{
		{0, 0},
		{1, 1},
		{128, 1},
		{129, 2},
		{1024, 8},
	}

	for _, tc := range tests {
		afero.WriteFile(fs, "A/0/SIZE.DAT", make([]byte, tc.size), 0644)

		setFCB(c, "SIZE.DAT")
		if call(t, c, FileSize) != 0x00 {
			t.Fatalf("failed to size file")
		}
		if getFCB(c).GetRandomRecord() != tc.records {
			t.Fatalf("size %d: got %d records, expected %d", tc.size, getFCB(c).GetRandomRecord(), tc.records)
		}
	}
}

func TestTruncate(t *testing.T) {

	c, fs := newTestCPM(t)
	afero.WriteFile(fs, "A/0/LONG.TXT", make([]byte, 1000), 0644)

	f := fcb.FromString("LONG.TXT")
	f.SetRandomRecord(2)
	c.Memory.SetRange(fcbAddr, f.AsBytes()...)

	if call(t, c, FileTruncate) != 0x00 {
		t.Fatalf("truncate failed")
	}
	fi, _ := fs.Stat("A/0/LONG.TXT")
	if fi.Size() != 256 {
		t.Fatalf("wrong size after truncation %d", fi.Size())
	}

	setFCB(c, "MISSING.TXT")
	if call(t, c, FileTruncate) != 0xFF {
		t.Fatalf("truncated a missing file")
	}
}

func TestReadOnlyFilesystem(t *testing.T) {

	base := afero.NewMemMapFs()
	afero.WriteFile(base, "A/0/FIXED.TXT", []byte("fixed"), 0644)

	c, err := New(WithFilesystem(afero.NewReadOnlyFs(base)))
	if err != nil {
		t.Fatalf("failed to create CPM")
	}

	setFCB(c, "FIXED.TXT")
	if call(t, c, FileOpen) != 0x00 {
		t.Fatalf("failed to open file")
	}
	if call(t, c, FileRead) != 0x00 {
		t.Fatalf("failed to read file")
	}

	setFCB(c, "FIXED.TXT")
	if call(t, c, FileWrite) != 0x10 {
		t.Fatalf("wrote to a read-only file")
	}

	setFCB(c, "NEW.TXT")
	if call(t, c, FileMake) != 0xFF {
		t.Fatalf("created a file on a read-only filesystem")
	}

	setFCB(c, "FIXED.TXT")
	if call(t, c, FileDelete) != 0xFF {
		t.Fatalf("deleted a file on a read-only filesystem")
	}
}
