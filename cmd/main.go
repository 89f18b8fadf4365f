// Command ratehub maintains a local cache of exchange rates aggregated from
// several providers and answers rate queries from it.
//
// Usage:
//
//	ratehub [-config config.yaml] <command> [flags]
//
// Commands: update, get-rate, convert, show-rates, history, currencies,
// serve, setup.
//
// Environment variables:
//
//	EXCHANGERATE_API_KEY  key for the fiat provider
//	RATEHUB_DATA_DIR      overrides data_dir
//	RATEHUB_LOG_LEVEL     overrides log_level
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
)

const defaultConfigPath = "config.yaml"

var errUsage = errors.New("usage: ratehub [-config path] <update|get-rate|convert|show-rates|history|currencies|serve|setup> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("ratehub", flag.ContinueOnError)
	global.SetOutput(stderr)
	cfgPath := global.String("config", defaultConfigPath, "path to yaml config")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return errors.Wrapf(errUsage, "unknown command %q", name)
	}

	return cmd(ctx, env{configPath: *cfgPath, args: rest, stdout: stdout, stderr: stderr})
}
