// This file implements the BDOS function-calls.
//
// These are documented online:
//
// * https://www.seasip.info/Cpm/bdos.html

package cpm

import (
	"log/slog"
	"os"

	"github.com/skx/cpmhostfs/dirsearch"
	"github.com/skx/cpmhostfs/fcb"
	"github.com/skx/cpmhostfs/recordio"
	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/afero"
)

// maxRecords is the number of records in the largest file.
const maxRecords = recordio.MaxFileSize / recordio.BlockSize

// BdosSysCallDriveAllReset resets the drives.
//
// If there is a file named "$$$.SUB" then we need to return 0xFF in A,
// which will be read by the CCP - as created by SUBMIT.COM
func BdosSysCallDriveAllReset(cpm *CPM) error {

	// Reset disk - but leave the user-number alone
	cpm.currentDrive = 0
	cpm.updateRAM()

	// Reset our DMA address to the default
	cpm.dma = DefaultDMA

	// Any search in progress is over
	cpm.session = nil

	var ret uint8
	ok, _ := afero.Exists(cpm.fs, cpm.disks.HostPath(1, cpm.userNumber, "$$$.SUB"))
	if ok {
		ret = 0xFF
	}

	cpm.result(ret)
	return nil
}

// BdosSysCallDriveSet updates the current drive number.
func BdosSysCallDriveSet(cpm *CPM) error {

	// The drive number passed to this routine is 0 for A:, 1 for B:
	// up to 15 for P:.
	drv := cpm.CPU.States.DE.Lo

	if drv > 15 {
		cpm.Logger.Debug("invalid drive selected",
			slog.Int("drive", int(drv)))
		cpm.result(0xFF)
		return nil
	}

	// set the drive
	cpm.currentDrive = drv
	cpm.updateRAM()

	cpm.result(0x00)
	return nil
}

// BdosSysCallDriveGet returns the number of the active drive.
func BdosSysCallDriveGet(cpm *CPM) error {
	cpm.result(cpm.currentDrive)
	return nil
}

// BdosSysCallSetDMA updates the address of the DMA area, which is used for block I/O.
func BdosSysCallSetDMA(cpm *CPM) error {
	cpm.dma = cpm.CPU.States.DE.U16()
	cpm.result(0x00)
	return nil
}

// BdosSysCallUserNumber gets, or sets, the user-number.
func BdosSysCallUserNumber(cpm *CPM) error {

	// We're either setting or getting
	//
	// If the value is 0xFF we return it, otherwise we set
	if cpm.CPU.States.DE.Lo != 0xFF {

		// Set the number - masked, because valid values are 0-15
		cpm.userNumber = (cpm.CPU.States.DE.Lo & 0x0F)
		cpm.updateRAM()
	}

	cpm.result(cpm.userNumber)
	return nil
}

// BdosSysCallFileOpen opens the filename that matches the pattern on the FCB supplied in DE
//
// Nothing is held open, we just confirm the file exists and set the
// record count of the extent the FCB refers to.
func BdosSysCallFileOpen(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()
	path := cpm.hostPath(&fcbPtr)

	// child logger with more details.
	l := cpm.Logger.With(
		slog.String("function", "BdosSysCallFileOpen"),
		slog.String("name", fcbPtr.GetFileName()),
		slog.String("path", path))

	fi, err := cpm.fs.Stat(path)
	if err != nil || fi.IsDir() {
		l.Debug("failed to open, file does not exist")
		cpm.result(0xFF)
		return nil
	}

	// Records in the file, rounded up
	records := int((fi.Size() + recordio.BlockSize - 1) / recordio.BlockSize)

	// Records in the extent the FCB is looking at
	extent := fcbPtr.GetSequentialRecord() / fcb.RecordsPerExtent
	rc := records - extent*fcb.RecordsPerExtent
	if rc < 0 {
		rc = 0
	}
	if rc > fcb.RecordsPerExtent {
		rc = fcb.RecordsPerExtent
	}
	fcbPtr.RC = uint8(rc)

	l.Debug("result:OK",
		slog.Int("fcb", int(ptr)),
		slog.Int("record_count", rc),
		slog.Int64("file_size", fi.Size()))

	// Update the FCB in memory.
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.result(0x00)
	return nil
}

// BdosSysCallFileClose closes the filename that matches the pattern on the FCB supplied in DE
//
// Handles are only held for the duration of a read or write, so there
// is nothing to do beyond checking the file is present.
func BdosSysCallFileClose(cpm *CPM) error {

	_, fcbPtr := cpm.readFCB()

	ok, _ := afero.Exists(cpm.fs, cpm.hostPath(&fcbPtr))
	if !ok {
		cpm.result(0xFF)
		return nil
	}

	cpm.result(0x00)
	return nil
}

// BdosSysCallFindFirst finds the first filename, on disk, that matches the glob in the FCB supplied in DE.
//
// A drive of '?' searches the directories of every user upon the
// current drive, for every file.
func BdosSysCallFindFirst(cpm *CPM) error {

	_, fcbPtr := cpm.readFCB()

	var (
		sess  *dirsearch.Session
		entry fcb.DirEntry
		err   error
	)

	if fcbPtr.Drive == dirsearch.AllUsers {
		var name [8]uint8
		var typ [3]uint8
		for i := range name {
			name[i] = '?'
		}
		for i := range typ {
			typ[i] = '?'
		}
		sess, entry, err = cpm.search.FindFirstAllUsers(cpm.currentDrive+1, name, typ, true)
	} else {
		sess, entry, err = cpm.search.FindFirst(cpm.fcbDrive(&fcbPtr), cpm.userNumber, fcbPtr.Name, fcbPtr.Type, true)
	}

	// Previous results are now invalidated
	cpm.session = sess

	return cpm.searchResult(entry, err)
}

// BdosSysCallFindNext finds the next filename that matches the glob set in the FCB in DE.
func BdosSysCallFindNext(cpm *CPM) error {
	entry, err := cpm.session.FindNext()
	return cpm.searchResult(entry, err)
}

// searchResult copies a directory entry to the DMA area, and sets the
// return code.
func (cpm *CPM) searchResult(entry fcb.DirEntry, err error) error {
	if err != nil {
		cpm.result(status.NoMatch.Wire())
		return nil
	}

	// The entry is always the first of the four in the DMA area
	cpm.Memory.SetRange(cpm.dma, entry.AsBytes()...)

	cpm.result(status.Success.Wire())
	return nil
}

// BdosSysCallDeleteFile deletes the filename(s) matching the pattern specified by the FCB in DE.
func BdosSysCallDeleteFile(cpm *CPM) error {

	_, fcbPtr := cpm.readFCB()
	drive := cpm.fcbDrive(&fcbPtr)

	// We search without extents, so we see each file once.
	sess, entry, err := cpm.search.FindFirst(drive, cpm.userNumber, fcbPtr.Name, fcbPtr.Type, false)
	if err != nil {
		cpm.result(0xFF)
		return nil
	}

	for err == nil {
		path := cpm.disks.HostPath(drive, cpm.userNumber, entry.GetFileName())

		cpm.Logger.Debug("BdosSysCallDeleteFile: deleting file",
			slog.String("path", path))

		if er := cpm.fs.Remove(path); er != nil {
			cpm.Logger.Debug("BdosSysCallDeleteFile: failed to delete file",
				slog.String("path", path),
				slog.String("error", er.Error()))

			cpm.result(0xFF)
			return nil
		}

		entry, err = sess.FindNext()
	}

	cpm.result(0x00)
	return nil
}

// BdosSysCallRead reads a record from the file named in the FCB given in DE
func BdosSysCallRead(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()

	res := cpm.records.ReadSequential(cpm.hostPath(&fcbPtr), fcbPtr.GetSequentialRecord(), cpm.dma)

	// Update the next read position
	if res == status.Success {
		fcbPtr.IncreaseSequentialOffset()
		cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)
	}

	cpm.result(res.Wire())
	return nil
}

// BdosSysCallWrite writes a record to the file named in the FCB given in DE
func BdosSysCallWrite(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()

	res := cpm.records.WriteSequential(cpm.hostPath(&fcbPtr), fcbPtr.GetSequentialRecord(), cpm.dma)

	// Update the next write position
	if res == status.Success {
		extent := fcbPtr.GetSequentialRecord() / fcb.RecordsPerExtent
		fcbPtr.IncreaseSequentialOffset()
		grew(&fcbPtr, extent)
		cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)
	}

	cpm.result(res.Wire())
	return nil
}

// grew updates the record count of an FCB after a write, extent is the
// extent the FCB pointed to before the write.
func grew(f *fcb.FCB, extent int) {
	if f.GetSequentialRecord()/fcb.RecordsPerExtent != extent {
		f.RC = 0
		return
	}
	if f.Cr > f.RC {
		f.RC = f.Cr
	}
}

// BdosSysCallMakeFile creates the file named in the FCB given in DE
//
// The directory for the drive and user is created if it is missing.
func BdosSysCallMakeFile(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()
	drive := cpm.fcbDrive(&fcbPtr)

	err := cpm.disks.Ensure(drive, cpm.userNumber)
	if err != nil {
		cpm.result(0xFF)
		return nil
	}

	path := cpm.hostPath(&fcbPtr)

	// child logger with more details.
	l := cpm.Logger.With(
		slog.String("function", "BdosSysCallMakeFile"),
		slog.String("name", fcbPtr.GetFileName()),
		slog.String("path", path))

	file, err := cpm.fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		l.Debug("failed to create", slog.String("error", err.Error()))
		cpm.result(0xFF)
		return nil
	}
	file.Close()

	l.Debug("result:OK")

	// New files start at the beginning
	fcbPtr.RC = 0
	fcbPtr.SetSequentialRecord(0)
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.result(0x00)
	return nil
}

// BdosSysCallRenameFile will handle a rename operation.
//
// The new name is stored in the second half of the FCB, 16 bytes on.
func BdosSysCallRenameFile(cpm *CPM) error {

	ptr, src := cpm.readFCB()
	dst := fcb.FromBytes(cpm.Memory.GetRange(ptr+16, fcb.SIZE))

	drive := cpm.fcbDrive(&src)
	srcName := cpm.hostPath(&src)
	dstName := cpm.disks.HostPath(drive, cpm.userNumber, dst.GetFileName())

	cpm.Logger.Debug("Renaming file",
		slog.String("src", srcName),
		slog.String("dst", dstName))

	// The destination must not exist
	if ok, _ := afero.Exists(cpm.fs, dstName); ok {
		cpm.Logger.Debug("Renaming file failed, destination exists")
		cpm.result(0xFF)
		return nil
	}

	err := cpm.fs.Rename(srcName, dstName)
	if err != nil {
		cpm.Logger.Debug("Renaming file failed",
			slog.String("error", err.Error()))
		cpm.result(0xFF)
		return nil
	}

	cpm.result(0x00)
	return nil
}

// BdosSysCallReadRand reads a random block from the FCB pointed to by DE into the DMA area.
func BdosSysCallReadRand(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()

	record := fcbPtr.GetRandomRecord()
	fpos := int64(record) * recordio.BlockSize

	res := cpm.records.ReadRandom(cpm.hostPath(&fcbPtr), fpos, cpm.dma)

	// Sequential access continues from the record just read
	if res == status.Success {
		fcbPtr.SetSequentialRecord(record)
		cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)
	}

	cpm.result(res.Wire())
	return nil
}

// BdosSysCallWriteRand writes a random block from DMA area to the FCB pointed to by DE.
func BdosSysCallWriteRand(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()

	record := fcbPtr.GetRandomRecord()
	fpos := int64(record) * recordio.BlockSize

	res := cpm.records.WriteRandom(cpm.hostPath(&fcbPtr), fpos, cpm.dma)

	if res == status.Success {
		fcbPtr.SetSequentialRecord(record)
		if fcbPtr.Cr >= fcbPtr.RC {
			fcbPtr.RC = fcbPtr.Cr + 1
		}
		cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)
	}

	cpm.result(res.Wire())
	return nil
}

// BdosSysCallFileSize updates the Random Record bytes of the given FCB to the
// number of records in the file.
func BdosSysCallFileSize(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()
	path := cpm.hostPath(&fcbPtr)

	fi, err := cpm.fs.Stat(path)
	if err != nil {
		cpm.Logger.Debug("failed to get file size",
			slog.String("path", path),
			slog.String("error", err.Error()))
		cpm.result(0xFF)
		return nil
	}

	// Now we have the size we need to turn it into the number
	// of records, rounding up.
	records := int((fi.Size() + recordio.BlockSize - 1) / recordio.BlockSize)

	// Cap the size appropriately.
	if records > maxRecords {
		records = maxRecords
	}

	fcbPtr.SetRandomRecord(records)

	// Update the FCB in memory
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)
	cpm.result(0x00)
	return nil
}

// BdosSysCallRandRecord Sets the random record count bytes of the FCB to the number
// of the last record read/written by the sequential I/O calls.
func BdosSysCallRandRecord(cpm *CPM) error {

	ptr, fcbPtr := cpm.readFCB()

	fcbPtr.SetRandomRecord(fcbPtr.GetSequentialRecord())

	// Update the FCB in memory.
	cpm.Memory.SetRange(ptr, fcbPtr.AsBytes()...)

	cpm.result(0x00)
	return nil
}

// BdosSysCallTruncate shrinks the file in the FCB to the number of
// records given in the random record bytes.
func BdosSysCallTruncate(cpm *CPM) error {

	_, fcbPtr := cpm.readFCB()

	err := cpm.disks.Truncate(cpm.hostPath(&fcbPtr), fcbPtr.GetRandomRecord())
	if err != nil {
		cpm.Logger.Debug("failed to truncate",
			slog.String("error", err.Error()))
		cpm.result(0xFF)
		return nil
	}

	cpm.result(0x00)
	return nil
}
