package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/brettbedarf/isofs"
	"github.com/brettbedarf/isofs/adapters"
	"github.com/brettbedarf/isofs/config"
	"github.com/brettbedarf/isofs/internal/util"
	"github.com/brettbedarf/isofs/requests"
	"github.com/brettbedarf/isofs/server"
)

func main() {
	// Parse command line arguments
	var (
		configPath string
		nodesDef   string
		umount     bool
		verbose    int
	)
	pflag.StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	pflag.StringVarP(&nodesDef, "nodes", "n", "", "Path to a YAML or JSON nodes def file, or - for JSON on stdin")
	pflag.BoolVarP(&umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	pflag.IntVarP(&verbose, "verbose", "v", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace).")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] MOUNTPOINT\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	// Load config; the verbose flag wins over the file when set
	override := &config.ConfigOverride{}
	if configPath != "" {
		var err error
		if override, err = config.LoadConfigOverrideFile(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
	}
	if pflag.CommandLine.Changed("verbose") || override.LogLvl == nil {
		override.LogLvl = &verbose
	}
	cfg := config.NewConfig(override)

	// Initialize logger
	util.InitializeLogger(cfg.LogLvl, nil)
	logger := util.GetLogger("main")

	mnt := pflag.Arg(0)
	logger.Info().Str("config", configPath).Str("nodes", nodesDef).Str("mnt", mnt).Msg("IsoFS server initializing")
	// Check if mount point is provided
	if mnt == "" {
		pflag.Usage()
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	fs, err := server.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create filesystem")
	}
	logger.Debug().Str("id", fs.ID().String()).Msg("Filesystem created")

	// Load nodes
	if nodesDef != "" {
		reqs, err := loadNodes(nodesDef)
		if err != nil {
			// Invalid entries are skipped; the valid ones are still seeded
			logger.Error().Err(err).Str("nodes", nodesDef).Msg("Failed to load some node requests")
		}
		logger.Debug().Int("requests", len(reqs)).Msg("Node requests loaded")

		if _, err := fs.Seed(context.Background(), reqs); err != nil {
			logger.Error().Err(err).Msg("Failed to add some nodes")
		}
	} else {
		logger.Warn().Msg("No nodes file provided")
	}

	// Serve
	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	// Unmount the filesystem
	if err := fs.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
}

func loadNodes(def string) ([]*isofs.NodeRequest, error) {
	reg := adapters.NewRegistry()
	if def != "-" {
		// Host file sources resolve relative to the nodes file
		reg.Register(adapters.FileSourceType, &adapters.FileProvider{Dir: filepath.Dir(def)})
	}
	adapters.RegisterBuiltins(reg)

	if def == "-" {
		return requests.Decode(os.Stdin, reg)
	}
	return requests.LoadFile(def, reg)
}
