package main

import (
	"fmt"
	"strconv"

	"github.com/skx/cpmhostfs/status"
	"github.com/spf13/cobra"
)

func newMkdiskCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdisk DRIVE...",
		Short: "Create drives, along with the directory of user 0",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {

			c, err := a.emulator()
			if err != nil {
				return err
			}

			for _, arg := range args {
				drive, err := parseDrive(arg)
				if err != nil {
					return err
				}

				res := c.MakeDisk(drive)
				switch res {
				case status.Success:
					fmt.Fprintf(a.out, "created drive %c:\n", 'A'+drive-1)
				case status.DriveExists:
					return fmt.Errorf("drive %c: already exists", 'A'+drive-1)
				case status.InvalidDrive:
					return fmt.Errorf("drive %c: is not valid, drives are A-P", 'A'+drive-1)
				default:
					return fmt.Errorf("failed to create drive %c: %s (0x%02X)", 'A'+drive-1, res, res.Wire())
				}
			}
			return nil
		},
	}
}

func newMkuserCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkuser DRIVE USER",
		Short: "Create the directory of a user, upon an existing drive",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {

			drive, err := parseDrive(args[0])
			if err != nil {
				return err
			}

			user, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid user '%s': %w", args[1], err)
			}

			c, err := a.emulator()
			if err != nil {
				return err
			}

			err = c.MakeUserDir(drive, uint8(user))
			if err != nil {
				return fmt.Errorf("failed to create user %d on %c: %w", user, 'A'+drive-1, err)
			}

			fmt.Fprintf(a.out, "created user %d on drive %c:\n", user, 'A'+drive-1)
			return nil
		},
	}
}
