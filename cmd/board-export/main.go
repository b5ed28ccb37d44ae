// Command board-export renders one scenario of a set of experiments to
// static HTML, PNG and xlsx files.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scenario.board/internal/board"
	"github.com/banshee-data/scenario.board/internal/config"
	"github.com/banshee-data/scenario.board/internal/experiment"
	"github.com/banshee-data/scenario.board/internal/fsutil"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/version"
)

var (
	configPath   string
	scenarioType string
	logName      string
	scenarioName string
	planners     string
	outDir       string
	formats      string
	allowedRoots string
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "board-export [flags] <experiment-dir>...",
		Short:   "Export one scenario of a set of experiments as HTML, PNG and xlsx",
		Version: version.String(),
		Args:    cobra.MinimumNArgs(1),
		RunE:    run,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to a board JSON config (defaults apply when empty)")
	rootCmd.Flags().StringVar(&scenarioType, "type", "", "Scenario type (defaults to the first available)")
	rootCmd.Flags().StringVar(&logName, "log", "", "Log name")
	rootCmd.Flags().StringVar(&scenarioName, "scenario", "", "Scenario name")
	rootCmd.Flags().StringVar(&planners, "planners", "", "Comma-separated planners to draw (defaults to all)")
	rootCmd.Flags().StringVar(&outDir, "out", ".", "Output directory")
	rootCmd.Flags().StringVar(&formats, "formats", "html,png,xlsx", "Comma-separated output formats")
	rootCmd.Flags().StringVar(&allowedRoots, "allowed-roots", "", "Comma-separated directories experiments must live under")
	_ = rootCmd.MarkFlagRequired("log")
	_ = rootCmd.MarkFlagRequired("scenario")
	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.EmptyBoardConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadBoardConfig(configPath); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := experiment.LoadAll(args, splitList(allowedRoots))
	if err != nil {
		return fmt.Errorf("load experiments: %w", err)
	}

	opts := exportOptions{
		Controller: board.ControllerConfig(cfg, nil, nil),
		AssetsHost: cfg.GetAssetsHost(),
		Selection: scenario.Selection{
			ScenarioType: scenarioType,
			LogName:      logName,
			ScenarioName: scenarioName,
		},
		OutDir:  outDir,
		Formats: splitList(formats),
	}
	if planners != "" {
		opts.Planners = splitList(planners)
	}

	written, err := export(fsutil.OSFileSystem{}, data, opts)
	for _, name := range written {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
