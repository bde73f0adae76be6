// entry point

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/skx/cpmhostfs/cpm"
	"github.com/skx/cpmhostfs/version"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// fcbAddr is where we build the FCBs we pass to the BDOS.
const fcbAddr = 0x005C

// app holds the state shared by our sub-commands.
type app struct {
	// root is the host directory the drives live beneath.
	root string

	// debug enables debug logging, as does $DEBUG.
	debug bool

	// user is the user-number files are accessed as.
	user uint

	// out is where output is written.
	out io.Writer

	// fs is the filesystem holding the drives, if unset a view of
	// the host rooted at root is used.
	fs afero.Fs

	// host is the filesystem files are copied in from.
	host afero.Fs
}

// logger returns a logger writing JSON to stderr.
func (a *app) logger() *slog.Logger {

	// Setup our logging level - default to warnings or higher
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)

	// But show "everything" if $DEBUG is non-empty
	if a.debug || os.Getenv("DEBUG") != "" {
		lvl.Set(slog.LevelDebug)
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
}

// emulator returns a BDOS, with the selected user-number set.
func (a *app) emulator() (*cpm.CPM, error) {

	if a.user > 15 {
		return nil, fmt.Errorf("user %d out of range 0-15", a.user)
	}

	fs := a.fs
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), a.root)
	}

	c, err := cpm.New(cpm.WithFilesystem(fs), cpm.WithLogger(a.logger()))
	if err != nil {
		return nil, err
	}

	_, err = c.Call(cpm.UserNumber, uint16(a.user))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newRootCommand returns our command tree.
func newRootCommand(a *app) *cobra.Command {

	root := &cobra.Command{
		Use:           "cpmhostfs",
		Short:         "Access CP/M drives stored as host directories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	def := os.Getenv("CPMHOSTFS_ROOT")
	if def == "" {
		def = "."
	}

	root.PersistentFlags().StringVar(&a.root, "root", def, "directory holding the drives ($CPMHOSTFS_ROOT)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().UintVar(&a.user, "user", 0, "user-number to access files as, 0-15")

	root.AddCommand(
		newMkdiskCommand(a),
		newMkuserCommand(a),
		newLsCommand(a),
		newCatCommand(a),
		newPutCommand(a),
		newRmCommand(a),
		newMvCommand(a),
		newTruncateCommand(a),
		&cobra.Command{
			Use:   "version",
			Short: "Show our version",
			Args:  cobra.NoArgs,
			Run: func(_ *cobra.Command, _ []string) {
				fmt.Fprint(a.out, version.GetVersionBanner())
			},
		},
	)

	return root
}

// parseDrive converts "A", "b:", etc, to a drive number, 1 for A:.
//
// Any letter is accepted, deciding which are valid drives is left to
// the emulator.
func parseDrive(s string) (uint8, error) {
	s = strings.TrimSuffix(strings.ToUpper(s), ":")
	if len(s) != 1 || s[0] < 'A' || s[0] > 'Z' {
		return 0, fmt.Errorf("invalid drive '%s'", s)
	}
	return s[0] - 'A' + 1, nil
}

func main() {

	a := &app{
		out:  os.Stdout,
		host: afero.NewOsFs(),
	}

	err := newRootCommand(a).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
