package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool

	// runLog receives a copy of the log once the output folder exists.
	runLog = newLateFileWriter()
)

var rootCmd = &cobra.Command{
	Use:   "sevenzip-backup",
	Short: "Back up user folders into 7z archives",
	Long: `sevenzip-backup compresses a configured set of folders and system
inventories into 7z archives, one per target:
  - LZMA2 compression with per-target dictionary size and level
  - optional AES-256 encryption with encrypted headers
  - 4092 MiB volumes for large or multi-folder targets
  - SHA-256 manifest of every archive produced
  - optional Wake-on-LAN of the storage host and Telegram summary

Use as a one-shot command, interactively or from a scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only, no progress)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func setupLogging() {
	var console io.Writer
	if jsonOutput {
		console = os.Stdout
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		console = output
	}

	// The log file always gets debug output, the console follows the flags.
	consoleLevel := zerolog.InfoLevel
	switch {
	case quiet:
		consoleLevel = zerolog.ErrorLevel
	case verbose:
		consoleLevel = zerolog.DebugLevel
	}

	writer := zerolog.MultiLevelWriter(
		&zerolog.FilteredLevelWriter{Writer: zerolog.LevelWriterAdapter{Writer: console}, Level: consoleLevel},
		runLog,
	)
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = runLog.Close() }()
	return rootCmd.Execute()
}
