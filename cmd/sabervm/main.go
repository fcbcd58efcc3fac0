package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SaberVM/SaberVM/internal/cli"
	"github.com/SaberVM/SaberVM/internal/driver"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		showHelp    = flag.Bool("help", false, "show help information")
		jsonOutput  = flag.Bool("json", false, "output version in JSON format")
		debugMode   = flag.Bool("debug", false, "enable debug mode")
		verbose     = flag.Bool("verbose", false, "enable verbose logging")
		configPath  = flag.String("config", "", "path to a JSON config file (work dir default)")
		initConfig  = flag.Bool("init-config", false, "write a default config file to -config and exit")
		showStats   = flag.Bool("stats", false, "print region allocation stats after running")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] <image-file>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run a SaberVM program image.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s program.svm                    # run program.svm\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --debug program.svm            # run with debug logging\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config sabervm.json --stats program.svm\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --init-config --config sabervm.json\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		cli.PrintVersion("sabervm", *jsonOutput)
		os.Exit(0)
	}

	logger := cli.NewLogger(*verbose, *debugMode)

	if *initConfig {
		if *configPath == "" {
			cli.ExitWithCode(2, "-init-config requires -config <path>")
		}

		cfg := &cli.Config{WorkDir: "."}
		if err := cfg.SaveConfig(*configPath); err != nil {
			cli.ExitWithError("failed to write config file %s: %v", *configPath, err)
		}

		logger.Info("wrote default config to %s", *configPath)
		os.Exit(0)
	}

	var cfg *cli.Config
	if *configPath != "" {
		if _, statErr := os.Stat(*configPath); statErr != nil {
			logger.Warn("config file %s not found, using defaults: %v", *configPath, statErr)
		}

		loaded, err := cli.LoadConfig(*configPath)
		if err != nil {
			cli.ExitWithError("failed to load config %s: %v", *configPath, err)
		}

		cfg = loaded
		logger.Info("loaded config from %s (work_dir=%s)", *configPath, cfg.WorkDir)
	}

	args := flag.Args()
	if err := cli.ValidateArgs(args, 1, "sabervm [OPTIONS] <image-file>"); err != nil {
		flag.Usage()
		cli.ExitWithCode(2, "%v", err)
	}

	imagePath := args[0]
	if cfg != nil && cfg.WorkDir != "" && cfg.WorkDir != "." && !filepath.IsAbs(imagePath) {
		imagePath = filepath.Join(cfg.WorkDir, imagePath)
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		cli.ExitWithError("failed to read program image %s: %v", imagePath, err)
	}

	logger.Debug("parsed program image: %d bytes", len(image))

	if *showStats {
		status, stats, runErr := driver.RunWithStats(image, os.Stdout, os.Stderr)
		cli.HandleError(runErr, logger)

		fmt.Fprintf(os.Stderr, "region stats: allocations=%d frees=%d reuses=%d bytes_live=%d peak_bytes=%d\n",
			stats.Allocations, stats.Frees, stats.Reuses, stats.BytesLive, stats.PeakBytes)

		os.Exit(status)
	}

	status, err := driver.Run(image, os.Stdout, os.Stderr)
	cli.HandleError(err, logger)

	os.Exit(status)
}
