// Command chemctl talks to a chemistry service from the shell.
//
//	chemctl convert [flags] <identifier> <input-format> <output-format>
//	chemctl chemjson [flags] <inchi>
//	chemctl call [flags] <method> [params-json]
//	chemctl notify [flags] <method> [params-json]
//	chemctl kill [flags]
//	chemctl launch [flags] -- <executable> [args...]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chemrpc/chem"
	"chemrpc/client"
	"chemrpc/config"
	"chemrpc/harness"
	"chemrpc/launcher"
	"chemrpc/loadbalance"
	"chemrpc/log"
	"chemrpc/registry"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var code int
	switch command {
	case "convert":
		code = runConvert(args)
	case "chemjson":
		code = runChemJSON(args)
	case "call":
		code = runCall(args, false)
	case "notify":
		code = runCall(args, true)
	case "kill":
		code = runKill(args)
	case "launch":
		code = runLaunch(args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		code = 1
	}
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: chemctl <command> [flags] [args]

Commands:
  convert   Convert a molecule identifier between formats
  chemjson  Look up the chemical record for an InChI
  call      Send an arbitrary JSON-RPC request and print the result
  notify    Send an arbitrary JSON-RPC notification
  kill      Ask the service to exit (service must run with --testing)
  launch    Start a service, wait until it is ready, and stop it on Ctrl-C

Common flags:
  --config     YAML or TOML configuration file
  --endpoint   Endpoint name or socket path (default "chemdata")
  --codec      json or jsoniter
  --timeout    Per-call timeout
  --log-level  debug, info, warn, error`)
}

// common holds the flags every subcommand accepts.
type common struct {
	configPath string
	endpoint   string
	codec      string
	timeout    time.Duration
	logLevel   string
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "Path to a YAML or TOML configuration file")
	fs.StringVar(&c.endpoint, "endpoint", "", "Endpoint name or socket path")
	fs.StringVar(&c.codec, "codec", "", "JSON implementation: json or jsoniter")
	fs.DurationVar(&c.timeout, "timeout", 0, "Per-call timeout")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level")
	return fs, c
}

// load reads the config file (if any) and applies explicit flags on top of it.
func (c *common) load(fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Defaults()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Service.Endpoint = c.endpoint
			// An explicit endpoint bypasses discovery.
			cfg.Registry.Endpoints = nil
		case "codec":
			cfg.Client.Codec = c.codec
		case "timeout":
			cfg.Client.CallTimeout = config.Duration{Duration: c.timeout}
		case "log-level":
			cfg.Log.Level = c.logLevel
		}
	})
	log.Setup(cfg.Log.Level)
	return cfg, nil
}

func clientOptions(cfg *config.Config) []client.Option {
	opts := []client.Option{
		client.WithCodec(cfg.CodecType()),
		client.WithLogger(log.WithComponent("client")),
	}
	if cfg.Client.CallTimeout.Duration > 0 {
		opts = append(opts, client.WithCallTimeout(cfg.Client.CallTimeout.Duration))
	}
	return opts
}

// dial connects directly, or through etcd discovery when registry endpoints are set.
func dial(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	opts := clientOptions(cfg)
	if len(cfg.Registry.Endpoints) == 0 {
		return client.Dial(ctx, cfg.Service.Endpoint, opts...)
	}

	reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, log.WithComponent("registry"))
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	defer reg.Close()
	return client.DialService(ctx, reg, loadbalance.ByName(cfg.Registry.Balancer), cfg.Registry.ServiceName, opts...)
}

// withClient handles the boilerplate shared by the one-shot commands.
func withClient(fs *flag.FlagSet, c *common, args []string, fn func(ctx context.Context, cl *client.Client, rest []string) error) int {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	cfg, err := c.load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := dial(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		return 1
	}
	defer cl.Close()

	if err := fn(ctx, cl, fs.Args()); err != nil {
		if rpcErr, ok := client.AsRPCError(err); ok {
			fmt.Fprintf(os.Stderr, "Error %d: %s\n", rpcErr.Code, rpcErr.Message)
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runConvert(args []string) int {
	fs, c := newFlagSet("convert")
	return withClient(fs, c, args, func(ctx context.Context, cl *client.Client, rest []string) error {
		if len(rest) != 3 {
			return fmt.Errorf("usage: chemctl convert <identifier> <input-format> <output-format>")
		}
		out, err := chem.NewClient(cl).ConvertMoleculeIdentifier(ctx, rest[0], rest[1], rest[2])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	})
}

func runChemJSON(args []string) int {
	fs, c := newFlagSet("chemjson")
	return withClient(fs, c, args, func(ctx context.Context, cl *client.Client, rest []string) error {
		if len(rest) != 1 {
			return fmt.Errorf("usage: chemctl chemjson <inchi>")
		}
		out, err := chem.NewClient(cl).GetChemicalJSON(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	})
}

func runCall(args []string, notify bool) int {
	name := "call"
	if notify {
		name = "notify"
	}
	fs, c := newFlagSet(name)
	return withClient(fs, c, args, func(ctx context.Context, cl *client.Client, rest []string) error {
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("usage: chemctl %s <method> [params-json]", name)
		}
		var params any
		if len(rest) == 2 {
			var obj map[string]any
			if err := json.Unmarshal([]byte(rest[1]), &obj); err != nil {
				return fmt.Errorf("params must be a JSON object: %w", err)
			}
			params = obj
		}
		if notify {
			return cl.Notify(ctx, rest[0], params)
		}
		result, err := cl.CallRaw(ctx, rest[0], params)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	})
}

func runKill(args []string) int {
	fs, c := newFlagSet("kill")
	return withClient(fs, c, args, func(ctx context.Context, cl *client.Client, _ []string) error {
		return chem.NewClient(cl).Kill(ctx)
	})
}

func runLaunch(args []string) int {
	fs, c := newFlagSet("launch")
	testingMode := fs.Bool("testing", true, "Pass --testing so the service honours kill")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	cfg, err := c.load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer log.Sync()
	logger := log.WithComponent("chemctl")

	executable := cfg.Service.Executable
	svcArgs := cfg.Service.Args
	if rest := fs.Args(); len(rest) > 0 {
		executable, svcArgs = rest[0], rest[1:]
	}
	if executable == "" {
		fmt.Fprintln(os.Stderr, "No executable: pass one after -- or set service.executable")
		return 1
	}
	if *testingMode || cfg.Service.Testing {
		svcArgs = append(svcArgs, launcher.TestingFlag)
	}
	svcArgs = append(svcArgs, "--endpoint", cfg.Service.Endpoint)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := harness.Open(ctx, harness.Config{
		Launch: launcher.Config{
			Executable:   executable,
			Args:         svcArgs,
			Endpoint:     cfg.Service.Endpoint,
			Timeout:      cfg.Service.ReadyTimeout.Duration,
			PollInterval: cfg.Service.PollInterval.Duration,
			Stdout:       os.Stdout,
			Stderr:       os.Stderr,
		},
		ClientOptions: clientOptions(cfg),
		Drain:         cfg.Service.DrainTimeout.Duration,
		Logger:        log.WithComponent("harness"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to launch: %v\n", err)
		return 1
	}
	fmt.Printf("service ready: pid=%d endpoint=%s\n", session.Handle().PID(), session.Handle().Endpoint())

	select {
	case <-ctx.Done():
		logger.Info("interrupt received, stopping service")
	case <-session.Handle().Done():
		logger.Warn("service exited on its own", zap.Int("code", session.Handle().ExitCode()))
	}

	if err := session.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
		return 1
	}
	return 0
}
