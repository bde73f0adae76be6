package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/skx/cpmhostfs/cpm"
	"github.com/skx/cpmhostfs/dirsearch"
	"github.com/skx/cpmhostfs/fcb"
	"github.com/skx/cpmhostfs/recordio"
	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// listing is a file found by a directory search, with the record counts
// of all its extents added together.
type listing struct {
	user    uint8
	name    string
	records int
	flags   fcb.Flags
}

// list returns the files matching the pattern, searching every user of
// the drive if all is set.
func list(c *cpm.CPM, pattern string, all bool) ([]listing, error) {

	f, err := parseName(pattern, true)
	if err != nil {
		return nil, err
	}

	if all {
		// The all-users search is of the current drive.
		if f.Drive != 0 {
			_, err = c.Call(cpm.DriveSet, uint16(f.Drive-1))
			if err != nil {
				return nil, err
			}
		}
		f.Drive = dirsearch.AllUsers
	}
	setFCB(c, f)

	var out []listing

	ret, err := c.Call(cpm.FindFirst, fcbAddr)
	for err == nil && ret == status.Success.Wire() {
		ent := fcb.DirEntryFromBytes(c.Memory.GetRange(c.GetDMA(), fcb.DirEntrySize))
		name := ent.GetFileName()

		n := len(out)
		if n > 0 && out[n-1].name == name && out[n-1].user == ent.User {
			out[n-1].records += int(ent.RC)
		} else {
			out = append(out, listing{
				user:    ent.User,
				name:    name,
				records: int(ent.RC),
				flags:   ent.GetFlags(),
			})
		}

		ret, err = c.Call(cpm.FindNext, fcbAddr)
	}
	return out, err
}

// isTerminal returns true if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// flagString returns the attributes of a file, as "RSA" with a "-" for
// those which are not set.
func flagString(f fcb.Flags) string {
	s := []byte("---")
	if f.ReadOnly {
		s[0] = 'R'
	}
	if f.System {
		s[1] = 'S'
	}
	if f.Archive {
		s[2] = 'A'
	}
	return string(s)
}

// showColumns shows the files four to a line, as DIR does.
func showColumns(w io.Writer, drive uint8, files []listing) {
	for i, f := range files {
		name, typ, _ := strings.Cut(f.name, ".")

		if i%4 == 0 {
			if i > 0 {
				fmt.Fprintf(w, "\n")
			}
			fmt.Fprintf(w, "%c: ", 'A'+drive)
		} else {
			fmt.Fprintf(w, " : ")
		}
		fmt.Fprintf(w, "%-8s %-3s", name, typ)
	}
	if len(files) > 0 {
		fmt.Fprintf(w, "\n")
	}
}

// showLines shows one file per line, for scripts.
func showLines(w io.Writer, all bool, files []listing) {
	for _, f := range files {
		if all {
			fmt.Fprintf(w, "%d\t", f.user)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.name, f.records*recordio.BlockSize, flagString(f.flags))
	}
}

func newLsCommand(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ls [PATTERN]",
		Short: "List the files matching a pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {

			pattern := "*.*"
			if len(args) == 1 {
				pattern = args[0]
			}

			c, err := a.emulator()
			if err != nil {
				return err
			}

			files, err := list(c, pattern, all)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("%s: no files found", pattern)
			}

			if isTerminal(a.out) {
				drive := c.GetCurrentDrive()
				if f := fcb.FromString(pattern); f.Drive != 0 {
					drive = f.Drive - 1
				}
				showColumns(a.out, drive, files)
				return nil
			}

			showLines(a.out, all, files)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "list the files of every user")
	return cmd
}
