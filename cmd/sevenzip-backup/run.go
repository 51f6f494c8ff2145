package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/sevenzip-backup/internal/config"
	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/fgeck/sevenzip-backup/internal/services/paths"
	"github.com/fgeck/sevenzip-backup/internal/services/runner"
	"github.com/fgeck/sevenzip-backup/internal/services/sevenzip"
	"github.com/fgeck/sevenzip-backup/internal/services/snapshot"
	"github.com/fgeck/sevenzip-backup/internal/services/trash"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// LogFileName is the run log written into the per-run output folder.
const LogFileName = "sevenzip-backup.log"

var (
	outputDir  string
	password   string
	engine     string
	enableAll  bool
	onlyTarget []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup workflow",
	Long: `Execute the complete backup workflow:
1. Wake-on-LAN of the storage host (if configured)
2. Refuse to run if the output folder lies inside a target
3. Create the dated output folder below the output root
4. Archive every enabled target in id order
5. Write the sha256.txt manifest
6. Send Telegram notification (if configured)

Without --config the built-in catalog is used with the detected user folders.`,
	RunE: runBackup,
}

func init() {
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output root directory (overrides the config)")
	runCmd.Flags().StringVarP(&password, "password", "p", "", "archive password (overrides the config, enables encryption)")
	runCmd.Flags().StringVar(&engine, "engine", sevenzip.DefaultBinary, "7z executable")
	runCmd.Flags().BoolVar(&enableAll, "all", false, "enable every target that has a path")
	runCmd.Flags().StringSliceVarP(&onlyTarget, "target", "t", nil, "run only these target ids")
}

func runBackup(cmd *cobra.Command, args []string) error {
	model := config.NewModel(log.Logger, Version)
	userPaths := paths.New(log.Logger).Paths()
	model.UpdatePaths(userPaths)

	if configFile != "" {
		if _, _, err := model.LoadConfig(configFile); err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
			return err
		}
	}

	if err := applyRunFlags(model); err != nil {
		log.Error().Err(err).Msg("invalid arguments")
		return err
	}

	global := model.Global()
	targets := model.Targets()
	if err := model.ValidateGlobalConfig(global); err != nil {
		log.Error().Err(err).Msg("invalid global configuration")
		return err
	}
	if err := model.ValidateTargetConfig(targets); err != nil {
		log.Error().Err(err).Msg("invalid target configuration")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("output", global.OutputRootDir).
		Int("enabled_targets", len(targets.Enabled())).
		Bool("encrypted", global.EncryptionPassword != "").
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, aborting the current target")
		cancel()
	}()

	snapshotOpts := snapshot.Options{
		HomeDir:   userPaths[paths.Home],
		VideosDir: userPaths[paths.Videos],
	}
	runnerSvc := runner.New(log.Logger, engine, trash.NewSystem(log.Logger), snapshotOpts)

	printer := newProgressPrinter(os.Stderr)
	summary, err := runnerSvc.Run(ctx, models.RunRequest{
		Targets:    targets,
		OutputPath: global.OutputRootDir,
		Password:   global.EncryptionPassword,
		Quiet:      quiet,
		Hooks:      model.Hooks(),
		Progress:   printer.Update,
		OnOutputDir: func(dir string) {
			if err := runLog.Open(filepath.Join(dir, LogFileName)); err != nil {
				log.Warn().Err(err).Msg("could not open run log file")
			}
		},
	})
	printer.Done()
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	printSummary(summary)

	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d targets failed", len(failed), len(summary.Targets))
	}

	log.Info().Msg("backup completed successfully")
	return nil
}

// applyRunFlags folds the command line overrides into the model.
func applyRunFlags(model *config.Model) error {
	if outputDir != "" {
		if _, err := model.SetOutputRootDir(outputDir); err != nil {
			return err
		}
	}
	if password != "" {
		model.SetEncryptionPassword(password)
	}

	targets := model.Targets()
	if enableAll {
		for id, item := range targets {
			if item.Type == models.ItemTypeFolder && item.Path.IsAbsent() {
				log.Warn().Str("target", id).Msg("no path detected, leaving target disabled")
				continue
			}
			if err := model.SetEnabled(id, true); err != nil {
				return err
			}
		}
	}
	if len(onlyTarget) > 0 {
		selected := make(map[string]bool, len(onlyTarget))
		for _, id := range onlyTarget {
			if _, ok := targets[id]; !ok {
				return fmt.Errorf("unknown target %q", id)
			}
			selected[id] = true
		}
		for id := range targets {
			if err := model.SetEnabled(id, selected[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

func printSummary(summary *models.RunSummary) {
	if quiet || jsonOutput {
		return
	}

	fmt.Println()
	fmt.Printf("Output: %s\n", summary.OutputPath)
	for _, r := range summary.Targets {
		switch r.Status {
		case models.TargetSucceeded:
			fmt.Printf("  %-24s %10s -> %-10s %s\n", r.ID,
				humanize.IBytes(uint64(r.BeforeBytes)), humanize.IBytes(uint64(r.AfterBytes)),
				r.Duration.Round(time.Second))
		case models.TargetFailed:
			fmt.Printf("  %-24s FAILED: %v\n", r.ID, r.Error)
		default:
			fmt.Printf("  %-24s skipped\n", r.ID)
		}
	}
	before, after := summary.TotalBytes()
	fmt.Printf("Total: %s -> %s in %s\n",
		humanize.IBytes(uint64(before)), humanize.IBytes(uint64(after)), summary.Duration.Round(time.Second))
	if summary.Manifest != nil {
		fmt.Printf("Manifest: %d archive(s) in %s\n", len(summary.Manifest.Entries), summary.Manifest.Path)
	}
}
