// Command metadata-injector writes random tags into media files, either
// through an HTTP API or directly on local files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"metadata-injector/errors"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// configFile will be filled with the -config flag value
var configFile string

// logLevel will be filled with the -loglevel flag value
var logLevel string

func main() {
	flag.StringVar(&configFile, "config", "", "filepath to YAML configuration file")
	flag.StringVar(&logLevel, "loglevel", "info", "loglevel to use")

	flag.VisitAll(func(f *flag.Flag) {
		subcommands.ImportantFlag(f.Name)
	})
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(versionCmd, "")
	subcommands.Register(configCmd, "")
	subcommands.Register(serveCmd, "")
	subcommands.Register(injectCmd, "files")
	subcommands.Register(inspectCmd, "files")
	subcommands.Register(generateCmd, "files")

	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse loglevel flag")
		os.Exit(int(subcommands.ExitUsageError))
	}
	logger = logger.Level(level)

	ctx := logger.WithContext(context.Background())

	errCh := make(chan error, 2)
	err = executeCommand(ctx, errCh)
	if err == nil {
		// either a signal asked us to stop or the command succeeded, in both
		// cases the next value tells how the command ended
		err = <-errCh
	}

	var code int
	if exitErr, ok := err.(ExitError); ok {
		code = exitErr.StatusCode()
		err = exitErr.Unwrap()
	} else if err != nil {
		code = int(subcommands.ExitFailure)
	}
	if err != nil {
		logger.Error().Err(err).Msg("exit")
		fmt.Fprintln(os.Stderr, "error:", errors.Message(err))
	}
	os.Exit(code)
}

// executeCommand runs subcommands.Execute and handles OS signals. It returns
// nil when a signal asked us to stop, the command then reports on errCh once
// it returns.
func executeCommand(ctx context.Context, errCh chan error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	go func() {
		code := subcommands.Execute(ctx, errCh)
		// commands that aren't our cmd type never send on errCh, so always
		// follow up with the exit status
		errCh <- WithStatusCode(nil, int(code))
	}()

	select {
	case sig := <-signalCh:
		zerolog.Ctx(ctx).Info().Str("signal", sig.String()).Msg("stopping")
		return nil
	case err := <-errCh:
		return err
	}
}

// WithStatusCode returns an ExitError with the given status code
func WithStatusCode(err error, code int) error {
	return exitError{err, code}
}

// ExitError is an error that can carry a status code to be passed to os.Exit
type ExitError interface {
	error
	// StatusCode returns a status code to be passed to os.Exit
	StatusCode() int
	Unwrap() error
}

type exitError struct {
	err  error
	code int
}

func (e exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error { return e.err }

// StatusCode returns a status code to be passed to os.Exit
func (e exitError) StatusCode() int {
	return e.code
}
