// Package recordio transfers 128-byte records between host files and the
// memory of the emulated machine.
//
// CP/M programs read and write files one record at a time, to and from
// the DMA address.  Here each operation opens the host file, moves a single
// record, and closes it again, returning the status.Code the BDOS should
// report.
package recordio

import (
	"io"
	"log/slog"
	"os"

	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/afero"
)

// BlockSize is the size of a single record.
const BlockSize = 128

// MaxFileSize is the size of the largest file CP/M can address, 8Mb.
const MaxFileSize = 65536 * BlockSize

// EOF is the byte CP/M uses to mark the end of text files.  Records are
// filled with it before reading, so a short read leaves it in the tail.
const EOF = 0x1A

// DefaultExtentRecords is the number of records in one extent.
const DefaultExtentRecords = 128

// Memory is the part of the emulated RAM we need.
//
// Generated mock using mockgen:
//
//	mockgen -source=recordio.go -destination=memory_mock.go -package recordio
type Memory interface {
	GetRange(addr uint16, size int) []uint8
	SetRange(addr uint16, data ...uint8)
}

// RecordIO performs record-sized reads and writes.
type RecordIO struct {
	// Fs is the host filesystem.
	Fs afero.Fs

	// Memory is the RAM records are transferred to and from.
	Memory Memory

	// Logger is used for diagnostics.
	Logger *slog.Logger

	// extentRecords is used to decide whether a failed random read
	// is inside an extent the file has.
	extentRecords int
}

// Option is used to configure a RecordIO.
type Option func(*RecordIO)

// WithExtentRecords sets the number of records held in one extent.
func WithExtentRecords(n int) Option {
	return func(r *RecordIO) {
		if n < 1 {
			n = 1
		}
		r.extentRecords = n
	}
}

// WithLogger sets the logger to use.
func WithLogger(logger *slog.Logger) Option {
	return func(r *RecordIO) {
		r.Logger = logger
	}
}

// New returns a RecordIO which moves records between the given
// filesystem and memory.
func New(fs afero.Fs, mem Memory, options ...Option) *RecordIO {
	r := &RecordIO{
		Fs:            fs,
		Memory:        mem,
		Logger:        slog.Default(),
		extentRecords: DefaultExtentRecords,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ReadSequential reads the given record of the file to the DMA address.
//
// Reading at, or after, the end of the file returns UnwrittenData with
// the DMA area filled with EOF bytes.
func (r *RecordIO) ReadSequential(path string, record int, dma uint16) status.Code {
	return r.read(path, int64(record)*BlockSize, dma, false)
}

// ReadRandom reads the record at the given byte offset to the DMA address.
//
// A read past the end of the file is classified by where it lands.  Past
// the largest possible file is SeekPastMax, which is returned even if the
// file doesn't exist.  Inside the last extent of the file is UnwrittenData,
// anything later is UnwrittenExtent.
func (r *RecordIO) ReadRandom(path string, fpos int64, dma uint16) status.Code {
	if fpos >= MaxFileSize {
		return status.SeekPastMax
	}
	return r.read(path, fpos, dma, true)
}

// WriteSequential writes the DMA area to the given record of the file,
// padding the file with zeros if the record lies beyond its end.
func (r *RecordIO) WriteSequential(path string, record int, dma uint16) status.Code {
	fpos := int64(record) * BlockSize
	if fpos >= MaxFileSize {
		return status.SeekFailed
	}
	return r.write(path, fpos, dma, status.SeekFailed)
}

// WriteRandom writes the DMA area to the given byte offset of the file,
// padding the file with zeros if the offset lies beyond its end.
func (r *RecordIO) WriteRandom(path string, fpos int64, dma uint16) status.Code {
	if fpos >= MaxFileSize {
		return status.SeekPastMax
	}
	return r.write(path, fpos, dma, status.SeekPastMax)
}

// ExtendTo appends zeros to the file until it is at least fpos bytes long.
//
// Files already long enough are untouched.  The file must exist, and false
// is returned if it doesn't, or if any write fails.
func (r *RecordIO) ExtendTo(path string, fpos int64) bool {
	f, err := r.Fs.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		r.Logger.Debug("failed to open file for extension",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		r.Logger.Debug("failed to stat file for extension",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false
	}

	missing := fpos - fi.Size()
	if missing <= 0 {
		return true
	}

	r.Logger.Debug("extending file",
		slog.String("path", path),
		slog.Int64("size", fi.Size()),
		slog.Int64("target", fpos))

	zero := make([]byte, BlockSize)
	for missing > 0 {
		n := int64(len(zero))
		if missing < n {
			n = missing
		}
		if _, err = f.Write(zero[:n]); err != nil {
			r.Logger.Debug("failed to extend file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return false
		}
		missing -= n
	}
	return true
}

// read implements both kinds of read.
func (r *RecordIO) read(path string, fpos int64, dma uint16, random bool) status.Code {

	f, err := r.Fs.Open(path)
	if err != nil {
		r.Logger.Debug("failed to open file for reading",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return status.FileNotFound
	}
	defer f.Close()

	buf := make([]uint8, BlockSize)
	for i := range buf {
		buf[i] = EOF
	}

	size, ok := r.seek(f, path, fpos)
	if !ok {
		res := status.UnwrittenData
		if random {
			res = r.classify(size, fpos)
		}
		if res == status.UnwrittenData {
			r.Memory.SetRange(dma, buf...)
		}
		return res
	}

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		r.Logger.Debug("failed to read record",
			slog.String("path", path),
			slog.Int64("offset", fpos),
			slog.String("error", err.Error()))
	}

	r.Memory.SetRange(dma, buf...)

	if n == 0 {
		return status.UnwrittenData
	}
	return status.Success
}

// write implements both kinds of write, seekFail is the code to return
// if the file couldn't be positioned.
func (r *RecordIO) write(path string, fpos int64, dma uint16, seekFail status.Code) status.Code {

	// No file to write to.
	if !r.ExtendTo(path, fpos) {
		return status.FileNotFound
	}

	f, err := r.Fs.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		r.Logger.Debug("failed to open file for writing",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return status.FileNotFound
	}
	defer f.Close()

	if _, ok := r.seek(f, path, fpos); !ok {
		return seekFail
	}

	data := r.Memory.GetRange(dma, BlockSize)

	n, err := f.Write(data)
	if err != nil || n != BlockSize {
		msg := "short write"
		if err != nil {
			msg = err.Error()
		}
		r.Logger.Debug("failed to write record",
			slog.String("path", path),
			slog.Int64("offset", fpos),
			slog.String("error", msg))
		return status.WriteFailed
	}
	return status.Success
}

// seek positions the file at the given offset, returning the size of the
// file and whether the seek succeeded.
//
// Seeking beyond the end of the file is a failure.
func (r *RecordIO) seek(f afero.File, path string, fpos int64) (int64, bool) {
	fi, err := f.Stat()
	if err != nil {
		r.Logger.Debug("failed to stat file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return 0, false
	}

	if fpos > fi.Size() {
		return fi.Size(), false
	}

	_, err = f.Seek(fpos, io.SeekStart)
	if err != nil {
		r.Logger.Debug("failed to seek",
			slog.String("path", path),
			slog.Int64("offset", fpos),
			slog.String("error", err.Error()))
		return fi.Size(), false
	}
	return fi.Size(), true
}

// classify decides why a random read found nothing.
func (r *RecordIO) classify(size int64, fpos int64) status.Code {
	if fpos >= MaxFileSize {
		return status.SeekPastMax
	}

	// Round the size up to the end of its last extent
	ext := int64(r.extentRecords) * BlockSize
	rounded := ext * ((size + ext - 1) / ext)

	if fpos < rounded {
		return status.UnwrittenData
	}
	return status.UnwrittenExtent
}
