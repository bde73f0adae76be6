package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skx/cpmhostfs/cpm"
	"github.com/skx/cpmhostfs/fcb"
	"github.com/skx/cpmhostfs/recordio"
	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// parseName converts a CP/M filename, with optional drive prefix, to an
// FCB.  Wildcards are only accepted if wild is set.
func parseName(name string, wild bool) (fcb.FCB, error) {
	upper := strings.ToUpper(name)

	bare := upper
	if len(bare) >= 2 && bare[1] == ':' {
		if bare[0] < 'A' || bare[0] > 'P' {
			return fcb.FCB{}, fmt.Errorf("invalid drive in '%s'", name)
		}
		bare = bare[2:]
	}

	if strings.ContainsAny(bare, "*?") {
		if !wild {
			return fcb.FCB{}, fmt.Errorf("wildcards are not allowed in '%s'", name)
		}
	} else if !fcb.ValidHostName(bare) {
		return fcb.FCB{}, fmt.Errorf("invalid CP/M filename '%s'", name)
	}

	return fcb.FromString(upper), nil
}

// setFCB stores the FCB where our syscalls expect it.
func setFCB(c *cpm.CPM, f fcb.FCB) {
	c.Memory.SetRange(fcbAddr, f.AsBytes()...)
}

// getFCB returns the FCB, as updated by the syscalls.
func getFCB(c *cpm.CPM) fcb.FCB {
	return fcb.FromBytes(c.Memory.GetRange(fcbAddr, fcb.SIZE))
}

// readFile returns the records of the named file.
func readFile(c *cpm.CPM, name string) ([]byte, error) {
	f, err := parseName(name, false)
	if err != nil {
		return nil, err
	}
	setFCB(c, f)

	ret, err := c.Call(cpm.FileOpen, fcbAddr)
	if err != nil {
		return nil, err
	}
	if ret != status.Success.Wire() {
		return nil, fmt.Errorf("%s: file not found", name)
	}

	var data []byte
	for {
		ret, err = c.Call(cpm.FileRead, fcbAddr)
		if err != nil {
			return nil, err
		}
		if ret != status.Success.Wire() {
			break
		}
		data = append(data, c.Memory.GetRange(c.GetDMA(), recordio.BlockSize)...)
	}

	if ret != status.UnwrittenData.Wire() {
		return nil, fmt.Errorf("%s: read failed with 0x%02X", name, ret)
	}

	_, err = c.Call(cpm.FileClose, fcbAddr)
	return data, err
}

// writeFile replaces the contents of the named file, padding the final
// record with EOF bytes.
func writeFile(c *cpm.CPM, name string, data []byte) error {
	f, err := parseName(name, false)
	if err != nil {
		return err
	}
	setFCB(c, f)

	ret, err := c.Call(cpm.FileMake, fcbAddr)
	if err != nil {
		return err
	}
	if ret != status.Success.Wire() {
		return fmt.Errorf("%s: failed to create file", name)
	}

	records := 0
	for off := 0; off < len(data); off += recordio.BlockSize {
		rec := bytes.Repeat([]byte{recordio.EOF}, recordio.BlockSize)
		copy(rec, data[off:])
		c.Memory.SetRange(c.GetDMA(), rec...)

		ret, err = c.Call(cpm.FileWrite, fcbAddr)
		if err != nil {
			return err
		}
		if ret != status.Success.Wire() {
			return fmt.Errorf("%s: write of record %d failed with 0x%02X", name, records, ret)
		}
		records++
	}

	// The file might have been longer before.
	f = getFCB(c)
	f.SetRandomRecord(records)
	setFCB(c, f)

	ret, err = c.Call(cpm.FileTruncate, fcbAddr)
	if err != nil {
		return err
	}
	if ret != status.Success.Wire() {
		return fmt.Errorf("%s: failed to truncate file", name)
	}

	_, err = c.Call(cpm.FileClose, fcbAddr)
	return err
}

// textEnd returns the data up to the EOF marker within the final record.
func textEnd(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	last := len(data) - recordio.BlockSize
	if last < 0 {
		last = 0
	}
	if i := bytes.IndexByte(data[last:], recordio.EOF); i >= 0 {
		return data[:last+i]
	}
	return data
}

func newCatCommand(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "cat FILE...",
		Short: "Show the contents of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {

			c, err := a.emulator()
			if err != nil {
				return err
			}

			for _, name := range args {
				data, err := readFile(c, name)
				if err != nil {
					return err
				}
				if !raw {
					data = textEnd(data)
				}
				a.out.Write(data)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "show whole records, including the EOF padding")
	return cmd
}

func newPutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put HOSTFILE [NAME]",
		Short: "Copy a host file onto a drive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {

			data, err := afero.ReadFile(a.host, args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			name := strings.ToUpper(filepath.Base(args[0]))
			if len(args) == 2 {
				name = args[1]
			}

			c, err := a.emulator()
			if err != nil {
				return err
			}

			err = writeFile(c, name, data)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s: %d records\n", strings.ToUpper(name), (len(data)+recordio.BlockSize-1)/recordio.BlockSize)
			return nil
		},
	}
}

func newRmCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm PATTERN...",
		Short: "Delete the files matching patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {

			c, err := a.emulator()
			if err != nil {
				return err
			}

			for _, pattern := range args {
				f, err := parseName(pattern, true)
				if err != nil {
					return err
				}
				setFCB(c, f)

				ret, err := c.Call(cpm.FileDelete, fcbAddr)
				if err != nil {
					return err
				}
				if ret != status.Success.Wire() {
					return fmt.Errorf("%s: no files deleted", pattern)
				}
			}
			return nil
		},
	}
}

func newMvCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv OLD NEW",
		Short: "Rename a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {

			src, err := parseName(args[0], false)
			if err != nil {
				return err
			}
			dst, err := parseName(args[1], false)
			if err != nil {
				return err
			}

			c, err := a.emulator()
			if err != nil {
				return err
			}

			// The new name follows the old, as with REN.
			setFCB(c, src)
			c.Memory.SetRange(fcbAddr+16, dst.AsBytes()[:16]...)

			ret, err := c.Call(cpm.FileRename, fcbAddr)
			if err != nil {
				return err
			}
			if ret != status.Success.Wire() {
				return fmt.Errorf("failed to rename %s to %s", args[0], args[1])
			}
			return nil
		},
	}
}

func newTruncateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "truncate FILE RECORDS",
		Short: "Shrink a file to the given number of records",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {

			f, err := parseName(args[0], false)
			if err != nil {
				return err
			}

			records, err := strconv.Atoi(args[1])
			if err != nil || records < 0 || records > recordio.MaxFileSize/recordio.BlockSize {
				return fmt.Errorf("invalid record count '%s'", args[1])
			}

			c, err := a.emulator()
			if err != nil {
				return err
			}

			f.SetRandomRecord(records)
			setFCB(c, f)

			ret, err := c.Call(cpm.FileTruncate, fcbAddr)
			if err != nil {
				return err
			}
			if ret != status.Success.Wire() {
				return fmt.Errorf("%s: failed to truncate", args[0])
			}
			return nil
		},
	}
}
