package main

import (
	"fmt"
	"os"

	"github.com/fgeck/sevenzip-backup/internal/config"
	"github.com/fgeck/sevenzip-backup/internal/services/paths"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without executing any backup operations.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	model := config.NewModel(log.Logger, Version)
	model.UpdatePaths(paths.New(log.Logger).Paths())

	global, targets, err := model.LoadConfig(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Output root: %s\n", global.OutputRootDir)
	fmt.Printf("  Encryption: %v\n", global.EncryptionEnabled)
	fmt.Println()
	fmt.Println("Targets:")
	for _, entry := range targets.Sorted() {
		state := "disabled"
		if entry.Item.Enabled {
			state = "enabled"
		}
		fmt.Printf("  %-22s %-8s %-8s mx=%d dict=%s path=%s\n",
			entry.ID, entry.Item.Type, state, entry.Item.MxLevel, entry.Item.DictSize, entry.Item.Path)
	}

	hooks := model.Hooks()
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %v\n", hooks.WOL != nil)
	fmt.Printf("  Telegram: %v\n", hooks.Telegram != nil)

	if hooks.WOL != nil {
		fmt.Println()
		fmt.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", hooks.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", hooks.WOL.BroadcastIP)
		if hooks.WOL.WaitPath != "" {
			fmt.Printf("  Wait Path: %s\n", hooks.WOL.WaitPath)
		}
	}

	if hooks.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", hooks.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
