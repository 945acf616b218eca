// Command chemsvc is the reference chemistry service: it answers
// convertMoleculeIdentifier, getChemicalJson and (with --testing) kill on a local
// socket until it is killed or receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chemrpc/catalog"
	"chemrpc/chem"
	"chemrpc/config"
	"chemrpc/log"
	"chemrpc/registry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("chemsvc", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML or TOML configuration file")
	endpoint := fs.String("endpoint", chem.DefaultEndpoint, "Endpoint name or socket path to listen on")
	catalogPath := fs.String("catalog", "", "SQLite catalog file (default: built-in fixture)")
	testingMode := fs.Bool("testing", false, "Honour the kill method")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	codecName := fs.String("codec", "", "JSON implementation: json or jsoniter")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	// Explicit flags win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Service.Endpoint = *endpoint
		case "catalog":
			cfg.Service.Catalog = *catalogPath
		case "testing":
			cfg.Service.Testing = *testingMode
		case "log-level":
			cfg.Log.Level = *logLevel
		case "codec":
			cfg.Client.Codec = *codecName
		}
	})

	log.Setup(cfg.Log.Level)
	defer log.Sync()
	logger := log.WithComponent("main")
	logger.Info("chemsvc starting",
		zap.String("endpoint", cfg.Service.Endpoint),
		zap.Bool("testing", cfg.Service.Testing),
		zap.String("catalog", cfg.Service.Catalog))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(ctx, cfg.Service.Catalog)
	if err != nil {
		logger.Error("failed to open catalog", zap.String("path", cfg.Service.Catalog), zap.Error(err))
		return 1
	}
	defer cat.Close()

	var reg registry.Registry
	if len(cfg.Registry.Endpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, log.WithComponent("registry"))
		if err != nil {
			logger.Error("failed to connect to etcd", zap.Strings("endpoints", cfg.Registry.Endpoints), zap.Error(err))
			return 1
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	err = chem.Run(ctx, chem.Options{
		Endpoint:        cfg.Service.Endpoint,
		Testing:         cfg.Service.Testing,
		Catalog:         cat,
		Codec:           cfg.CodecType(),
		MaxPayloadBytes: cfg.Client.MaxPayloadBytes,
		RequestTimeout:  cfg.Server.RequestTimeout.Duration,
		RateLimit:       cfg.Server.Rate,
		Burst:           cfg.Server.Burst,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
		Registry:        reg,
		ServiceName:     cfg.Registry.ServiceName,
		RegistryTTL:     cfg.Registry.TTL,
		Logger:          log.WithComponent("chemsvc"),
	})
	if err != nil {
		logger.Error("service failed", zap.Error(err))
		return 1
	}
	logger.Info("chemsvc stopped")
	return 0
}
