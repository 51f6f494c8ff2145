package main

import (
	"fmt"

	"github.com/fgeck/sevenzip-backup/internal/config"
	"github.com/fgeck/sevenzip-backup/internal/services/paths"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var initOutputDir string

var initConfigCmd = &cobra.Command{
	Use:   "init-config <file>",
	Short: "Write the default configuration",
	Long: `Write the built-in target catalog, filled in with the folders detected
on this machine, to a YAML file that can be edited and passed to --config.`,
	Args: cobra.ExactArgs(1),
	RunE: initConfig,
}

func init() {
	initConfigCmd.Flags().StringVarP(&initOutputDir, "output", "o", "", "output root directory to store in the file")
}

func initConfig(cmd *cobra.Command, args []string) error {
	model := config.NewModel(log.Logger, Version)
	model.UpdatePaths(paths.New(log.Logger).Paths())

	if initOutputDir != "" {
		if _, err := model.SetOutputRootDir(initOutputDir); err != nil {
			return err
		}
	}

	written, err := model.Save(args[0])
	if err != nil {
		log.Error().Err(err).Str("file", args[0]).Msg("failed to write config")
		return err
	}

	fmt.Printf("Configuration written to %s\n", written)
	return nil
}
