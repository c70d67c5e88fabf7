// Package main provides the lumen command-line tool.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "init":
		err = runInit(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "train":
		err = runTrain(os.Args[2:])
	case "version":
		fmt.Printf("lumen %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  lumen <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a freshly initialised model directory")
	fmt.Println("  info        Show a model's configuration and weight metadata")
	fmt.Println("  generate    Continue a prompt")
	fmt.Println("  train       Train on a text file with next-token prediction")
	fmt.Println("  version     Show version")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  lumen init -dir ./tiny -hidden 64 -layers 2 -heads 4")
	fmt.Println("  lumen train -dir ./tiny -data corpus.txt -steps 500")
	fmt.Println("  lumen generate -dir ./tiny -prompt \"Once upon\" -max-new-tokens 64")
	fmt.Println("  lumen generate -dir ./tiny -prompt \"Once upon\" -config preset.yaml")
}

// newFlagSet returns a flag set carrying the shared -v flag.
func newFlagSet(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Debug logging")
	return fs, verbose
}

// setupLogger installs a text handler on stderr as the default logger.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// visited returns the names of the flags set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}
