// diagctl - command line client for the diagnostics gRPC server
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/grpcclient"
)

const usage = `Usage: diagctl [flags] <command> [args]

Commands:
  call <channel> <method> [key=value ...]   invoke a method, print the JSON result
  listen <channel>                          print events until interrupted
  describe                                  list method and event channels

Flags:
`

type options struct {
	addr    string
	timeout time.Duration
	wait    bool
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "diagctl:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diagctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.addr, "addr", envOr("DIAG_ADDR", "localhost:50051"), "gRPC server address")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "call timeout (listen is unbounded)")
	fs.BoolVar(&opts.wait, "wait", false, "wait for the server to report serving first")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		fs.Usage()
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	client, err := grpcclient.New(opts.addr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if opts.wait {
		if err := client.WaitReady(ctx, time.Second); err != nil {
			return err
		}
	}
	return cmd.exec(ctx, client, opts, stdout)
}

type command struct {
	name    string
	channel string
	method  string
	args    map[string]any
}

func parseCommand(rest []string) (command, error) {
	if len(rest) == 0 {
		return command{}, apperrors.New(apperrors.CodeInvalidArgument, "missing command")
	}
	switch name, rest := rest[0], rest[1:]; name {
	case "call":
		if len(rest) < 2 {
			return command{}, apperrors.New(apperrors.CodeInvalidArgument, "call needs <channel> <method>")
		}
		args, err := parseArgs(rest[2:])
		if err != nil {
			return command{}, err
		}
		return command{name: name, channel: rest[0], method: rest[1], args: args}, nil
	case "listen":
		if len(rest) != 1 {
			return command{}, apperrors.New(apperrors.CodeInvalidArgument, "listen needs <channel>")
		}
		return command{name: name, channel: rest[0]}, nil
	case "describe":
		return command{name: name}, nil
	default:
		return command{}, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown command %q", name)
	}
}

// parseArgs turns key=value pairs into call arguments. Values that parse as
// JSON keep their type; anything else is a string.
func parseArgs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	args := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "argument %q is not key=value", p)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		args[k] = parsed
	}
	return args, nil
}

func (c command) exec(ctx context.Context, client *grpcclient.Client, opts options, out io.Writer) error {
	enc := json.NewEncoder(out)
	switch c.name {
	case "call":
		ctx, cancel := context.WithTimeout(ctx, opts.timeout)
		defer cancel()
		res, err := client.Call(ctx, c.channel, c.method, c.args)
		if err != nil {
			return err
		}
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	case "listen":
		return client.Listen(ctx, c.channel,
			func(id string) { slog.Info("listening", "channel", c.channel, "stream_id", id) },
			func(ev any) { _ = enc.Encode(ev) },
		)

	default:
		ctx, cancel := context.WithTimeout(ctx, opts.timeout)
		defer cancel()
		desc, err := client.Describe(ctx)
		if err != nil {
			return err
		}
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
