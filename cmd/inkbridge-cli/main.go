package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/inkbridge/internal/core"
)

// app is built once the command line has been parsed.
var app *core.App

var rootCmd = &cobra.Command{
	Use:          "inkbridge-cli",
	Short:        "Convert archives from the archive server for an e-ink reader",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = core.New()
		return err
	},
}

func main() {
	rootCmd.AddCommand(convertCmd(), batchCmd(), searchCmd(), deviceCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if app != nil {
		app.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
