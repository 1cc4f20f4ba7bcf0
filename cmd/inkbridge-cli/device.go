package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoDevice = errors.New("no device configured (set device.url)")

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Browse the e-ink device",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls [path]",
		Short: "List a device folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Device() == nil {
				return errNoDevice
			}
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			files, err := app.Device().ListFiles(cmd.Context(), dir)
			if err != nil {
				return err
			}
			for _, f := range files {
				if f.IsDir {
					fmt.Fprintf(cmd.OutOrStdout(), "%s/\n", f.Name)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", f.Name, f.Size)
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a device folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Device() == nil {
				return errNoDevice
			}
			return app.Device().CreateFolder(cmd.Context(), args[0], args[1])
		},
	})
	return cmd
}
