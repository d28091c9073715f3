package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "methodc",
		Short: "Per-method bytecode to native compiler",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostics")

	compileCmd := &cobra.Command{
		Use:   "compile [config.yaml]",
		Short: "Compile the methods listed in a job file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCompile(args[0], newLogger(verbose)); err != nil {
				fatal(err)
			}
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("methodc %s (%s)\n", version, commit)
		},
	}

	root.AddCommand(compileCmd, versionCmd)
	if err := root.Execute(); err != nil {
		fatal(err)
	}
}
