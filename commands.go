package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"metadata-injector/audio"
	"metadata-injector/config"
	"metadata-injector/errors"
	"metadata-injector/handlers"
	"metadata-injector/metadata"
	"metadata-injector/server"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

type executeFn func(ctx context.Context, l loader, args []string) error

// loader loads the configuration named by the -config flag
type loader func() (config.Config, error)

type cmd struct {
	name     string
	synopsis string
	usage    string
	setFlags func(*flag.FlagSet)
	execute  executeFn
}

func (c cmd) Name() string     { return c.name }
func (c cmd) Synopsis() string { return c.synopsis }
func (c cmd) Usage() string    { return c.usage }
func (c cmd) SetFlags(f *flag.FlagSet) {
	if c.setFlags != nil {
		c.setFlags(f)
	}
}

func (c cmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	errCh := args[0].(chan error)

	zerolog.Ctx(ctx).UpdateContext(func(zc zerolog.Context) zerolog.Context {
		return zc.Str("cmd", c.name)
	})

	load := func() (config.Config, error) {
		return config.Load(configFile)
	}

	errCh <- c.execute(ctx, load, f.Args())
	return subcommands.ExitSuccess
}

// withConfig turns a function needing only the configuration into an
// executeFn
func withConfig(fn func(context.Context, config.Config) error) executeFn {
	return func(ctx context.Context, l loader, _ []string) error {
		cfg, err := l()
		if err != nil {
			return err
		}
		return fn(ctx, cfg)
	}
}

// needFiles returns a usage error if no file arguments were given
func needFiles(args []string) error {
	if len(args) == 0 {
		return WithStatusCode(errors.E(errors.InvalidArgument, "no files given"), int(subcommands.ExitUsageError))
	}
	return nil
}

func newRegistry(cfg config.Config) *audio.Registry {
	return audio.New(audio.WithFFmpeg(cfg.FFmpegPath, cfg.FFprobePath))
}

var serveCmd = cmd{
	name:     "serve",
	synopsis: "run the HTTP API",
	usage: `serve:
	run the HTTP API and remove expired uploads in the background
`,
	execute: withConfig(server.Execute),
}

var injectCmd = cmd{
	name:     "inject",
	synopsis: "inject random tags into files",
	usage: `inject FILE...:
	inject random tags into each file in place, files are handled
	independently and a failed file does not stop the others
`,
	execute: executeInject,
}

func executeInject(ctx context.Context, l loader, args []string) error {
	return injectFiles(ctx, l, args, os.Stdout)
}

func injectFiles(ctx context.Context, l loader, args []string, w io.Writer) error {
	if err := needFiles(args); err != nil {
		return err
	}
	cfg, err := l()
	if err != nil {
		return err
	}

	registry := newRegistry(cfg)
	logger := zerolog.Ctx(ctx)

	var failed int
	for _, path := range args {
		ts, err := registry.Inject(ctx, path)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("path", path).Msg("failed to inject tags")
			fmt.Fprintf(w, "FAIL %s: %s\n", path, errors.Message(err))
			continue
		}
		fmt.Fprintf(w, "OK   %s: %q by %q on %q (%s) track %s, %s: %q\n",
			path, ts.Title, ts.Artist, ts.Album, ts.Year, ts.Track, ts.Genre, ts.Comment)
	}

	if failed > 0 {
		return errors.E(errors.TagWrite, fmt.Sprintf("%d of %d files failed", failed, len(args)))
	}
	return nil
}

// generateCount is filled by the -n flag of generate
var generateCount int

var generateCmd = cmd{
	name:     "generate",
	synopsis: "print random tag sets",
	usage: `generate [-n N]:
	print N random tag sets as JSON, one per line
`,
	setFlags: func(f *flag.FlagSet) {
		f.IntVar(&generateCount, "n", 1, "number of tag sets to print")
	},
	execute: func(_ context.Context, _ loader, _ []string) error {
		return generate(os.Stdout, metadata.Generate, generateCount)
	},
}

func generate(w io.Writer, gen func() metadata.TagSet, n int) error {
	if n < 1 {
		return WithStatusCode(errors.E(errors.InvalidArgument, errors.Info("n"), "must be at least 1"), int(subcommands.ExitUsageError))
	}
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		if err := enc.Encode(gen()); err != nil {
			return err
		}
	}
	return nil
}

var inspectCmd = cmd{
	name:     "inspect",
	synopsis: "print the tags of files",
	usage: `inspect FILE...:
	print a JSON report of the tags and container details of each file
`,
	execute: func(ctx context.Context, l loader, args []string) error {
		return inspectFiles(ctx, l, args, os.Stdout)
	},
}

func inspectFiles(ctx context.Context, l loader, args []string, w io.Writer) error {
	if err := needFiles(args); err != nil {
		return err
	}
	cfg, err := l()
	if err != nil {
		return err
	}

	registry := newRegistry(cfg)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	var failed int
	for _, path := range args {
		rep, err := registry.Inspect(ctx, path)
		if err != nil {
			failed++
			zerolog.Ctx(ctx).Error().Err(err).Str("path", path).Msg("failed to inspect file")
			continue
		}
		if err := enc.Encode(rep); err != nil {
			return err
		}
	}

	if failed > 0 {
		return errors.E(errors.TagOpen, fmt.Sprintf("%d of %d files failed", failed, len(args)))
	}
	return nil
}

var configCmd = cmd{
	name:     "config",
	synopsis: "display current configuration",
	usage: `config:
	display current configuration

` + config.Description(),
	execute: printConfig,
}

func printConfig(_ context.Context, l loader, _ []string) error {
	// print the defaults if the configuration can't be loaded
	cfg, err := l()
	if err != nil {
		cfg = config.Default()
	}
	return cfg.Save(os.Stdout)
}

var versionCmd = cmd{
	name:     "version",
	synopsis: "display version information of executable",
	usage: `version:
	display version information of executable
`,
	execute: printVersion,
}

func printVersion(context.Context, loader, []string) error {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Printf("metadata-injector %s (devel)\n", handlers.Version)
		return nil
	}

	revision := "(devel)"
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			revision = setting.Value
		}
	}
	fmt.Printf("%s %s %s\n", info.Path, handlers.Version, revision)
	for _, mod := range info.Deps {
		fmt.Printf("\t%s %s\n", mod.Path, mod.Version)
	}
	return nil
}
