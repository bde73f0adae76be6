package cpm

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/skx/cpmhostfs/disk"
	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/afero"
)

// newTestCPM returns a helper using a memory-backed filesystem, and
// extents of 16 records.
func newTestCPM(t *testing.T) (*CPM, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	c, err := New(WithFilesystem(fs), WithExtentRecords(16))
	if err != nil {
		t.Fatalf("failed to create CPM: %s", err)
	}
	return c, fs
}

func TestBogusConstructor(t *testing.T) {

	_, err := New(WithFilesystem(nil))
	if err == nil {
		t.Fatalf("expected error with nil filesystem")
	}

	for _, n := range []int{-1, 0, 129, 1024} {
		_, err = New(WithExtentRecords(n))
		if err == nil {
			t.Fatalf("expected error with extent size %d", n)
		}
	}

	// nil logger is ignored
	c, err := New(WithLogger(nil), WithFilesystem(afero.NewMemMapFs()))
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if c.Logger == nil {
		t.Fatalf("logger was cleared")
	}
}

func TestDefaults(t *testing.T) {

	c, err := New(WithFilesystem(afero.NewMemMapFs()))
	if err != nil {
		t.Fatalf("failed to create CPM")
	}

	if c.GetDMA() != DefaultDMA {
		t.Fatalf("bogus initial DMA %04X", c.GetDMA())
	}
	if c.GetCurrentDrive() != 0 {
		t.Fatalf("bogus initial drive")
	}
	if c.GetUserNumber() != 0 {
		t.Fatalf("bogus initial user")
	}
	if c.extentRecords != 128 {
		t.Fatalf("bogus extent size %d", c.extentRecords)
	}

	// Every syscall has a name
	for num, h := range c.Syscalls {
		if h.Desc == "" || h.Handler == nil {
			t.Fatalf("syscall %d is incomplete", num)
		}
	}
}

func TestUnimplemented(t *testing.T) {

	c, _ := newTestCPM(t)

	// Console output isn't something we handle
	_, err := c.Call(0x02, 0x0000)
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected unimplemented, got %v", err)
	}

	c.CPU.States.BC.Lo = 0xFE
	err = c.Dispatch()
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected unimplemented, got %v", err)
	}

	// Truncation is ours, despite not being a CP/M 2.2 call
	_, err = c.Call(FileTruncate, 0x005C)
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	// But this is fine
	c.CPU.States.BC.Lo = DriveGet
	err = c.Dispatch()
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
}

func TestLogging(t *testing.T) {

	buf := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	c, err := New(WithFilesystem(afero.NewMemMapFs()), WithLogger(log))
	if err != nil {
		t.Fatalf("failed to create CPM")
	}

	_, err = c.Call(DriveGet, 0)
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if !strings.Contains(buf.String(), "DRV_GET") {
		t.Fatalf("syscall wasn't logged: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "0x19") {
		t.Fatalf("syscall number wasn't logged: %s", buf.String())
	}

	buf.Reset()
	_, err = c.Call(0xFE, 0)
	if !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected unimplemented, got %v", err)
	}
	if !strings.Contains(buf.String(), "Unimplemented") {
		t.Fatalf("missing syscall wasn't logged: %s", buf.String())
	}
}

func TestMakeDisk(t *testing.T) {

	c, fs := newTestCPM(t)

	type testcase struct {
		drive uint8
		code  status.Code
		wire  uint8
	}

	tests := []testcase{
		{1, status.Success, 0x00},
		{1, status.DriveExists, 0xFE},
		{16, status.Success, 0x00},
		{0, status.InvalidDrive, 0xFF},
		{17, status.InvalidDrive, 0xFF},
	}

	for _, tc := range tests {
		out := c.MakeDisk(tc.drive)
		if out != tc.code {
			t.Fatalf("drive %d: got %s, expected %s", tc.drive, out, tc.code)
		}
		if out.Wire() != tc.wire {
			t.Fatalf("drive %d: wrong wire value %02X", tc.drive, out.Wire())
		}
	}

	for _, dir := range []string{"A/0", "P/0"} {
		ok, _ := afero.DirExists(fs, dir)
		if !ok {
			t.Fatalf("%s wasn't created", dir)
		}
	}

	// A filesystem we can't write to
	ro, err := New(WithFilesystem(afero.NewReadOnlyFs(afero.NewMemMapFs())))
	if err != nil {
		t.Fatalf("failed to create CPM")
	}
	out := ro.MakeDisk(2)
	if out != status.ProvisionFailed || out.Wire() != 0xFE {
		t.Fatalf("expected provisioning failure, got %s", out)
	}
}

func TestMakeUserDir(t *testing.T) {

	c, fs := newTestCPM(t)

	// No drive yet
	if err := c.MakeUserDir(3, 4); err == nil {
		t.Fatalf("expected error without drive")
	}

	if c.MakeDisk(3) != status.Success {
		t.Fatalf("failed to make drive")
	}
	if err := c.MakeUserDir(3, 15); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	ok, _ := afero.DirExists(fs, "C/F")
	if !ok {
		t.Fatalf("user directory missing")
	}

	// again is fine
	if err := c.MakeUserDir(3, 15); err != nil {
		t.Fatalf("unexpected error %s", err)
	}

	if err := c.MakeUserDir(3, 16); err == nil {
		t.Fatalf("expected error with bogus user")
	}
	if err := c.MakeUserDir(0, 1); !errors.Is(err, disk.ErrInvalidDrive) {
		t.Fatalf("expected invalid drive, got %v", err)
	}
}

func TestConcurrentCalls(t *testing.T) {

	c, fs := newTestCPM(t)
	afero.WriteFile(fs, "A/0/DATA.BIN", make([]byte, 1024), 0644)
	setFCB(c, "DATA.BIN")

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := c.Call(DriveGet, 0); err != nil {
					errs <- err
					return
				}
				if _, err := c.Call(UserNumber, 0x00FF); err != nil {
					errs <- err
					return
				}
				if _, err := c.Call(FileSize, 0x005C); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error %s", err)
	}
}
