package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/autoscaler-scheduler/internal/config"
)

// exitError carries a process exit code without printing anything more.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// app holds what the commands read from the outside world, so tests can
// swap it.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	fs         afero.Fs
	now        func() time.Time
	loadConfig func() (config.Config, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		fs:         afero.NewOsFs(),
		now:        time.Now,
		loadConfig: config.Load,
	}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "scheduler",
		Short:         "Autoscaling schedule policy service",
		Long:          "Validates schedule policies of autoscaled applications and keeps their scaling triggers registered.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.AddCommand(a.serveCommand(), a.validateCommand(), a.migrateCommand())
	return root
}
