package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical board defaults file.
const DefaultConfigPath = "config/board.defaults.json"

// BoardConfig is the root configuration of the scenario board server and
// exporter. Every field is optional; the Get* accessors supply defaults.
type BoardConfig struct {
	// Serving
	Listen     *string `json:"listen,omitempty"`      // HTTP listen address
	GRPCListen *string `json:"grpc_listen,omitempty"` // LayoutService listen address
	DBPath     *string `json:"db_path,omitempty"`
	AssetsHost *string `json:"assets_host,omitempty"` // echarts assets prefix

	// Experiments
	ExperimentDirs []string `json:"experiment_dirs,omitempty"`
	AllowedRoots   []string `json:"allowed_roots,omitempty"`

	// Rendering
	MetricsPerFigure *int    `json:"metrics_per_figure,omitempty"`
	ScoreFigureSize  *[2]int `json:"score_figure_size,omitempty"` // [width, height] px
	PlotSize         *[2]int `json:"plot_size,omitempty"`         // [width, height] px
	WindowWidth      *int    `json:"window_width,omitempty"`
	PaletteSize      *int    `json:"palette_size,omitempty"`
	TimeSeriesXLabel *string `json:"time_series_x_label,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyBoardConfig returns a BoardConfig with all fields unset.
func EmptyBoardConfig() *BoardConfig {
	return &BoardConfig{}
}

// DefaultBoardConfig returns a BoardConfig with every field set to its default.
func DefaultBoardConfig() *BoardConfig {
	c := EmptyBoardConfig()
	sw, sh := c.GetScoreFigureSize()
	pw, ph := c.GetPlotSize()
	return &BoardConfig{
		ScoreFigureSize:  &[2]int{sw, sh},
		PlotSize:         &[2]int{pw, ph},
		Listen:           ptrString(c.GetListen()),
		GRPCListen:       ptrString(c.GetGRPCListen()),
		DBPath:           ptrString(c.GetDBPath()),
		AssetsHost:       ptrString(c.GetAssetsHost()),
		MetricsPerFigure: ptrInt(c.GetMetricsPerFigure()),
		WindowWidth:      ptrInt(c.GetWindowWidth()),
		PaletteSize:      ptrInt(c.GetPaletteSize()),
		TimeSeriesXLabel: ptrString(c.GetTimeSeriesXLabel()),
	}
}

// LoadBoardConfig loads a BoardConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Omitted fields keep
// their defaults, so partial configs are safe.
func LoadBoardConfig(path string) (*BoardConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBoardConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *BoardConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<bin>/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadBoardConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *BoardConfig) Validate() error {
	if c.MetricsPerFigure != nil && *c.MetricsPerFigure < 1 {
		return fmt.Errorf("metrics_per_figure must be at least 1, got %d", *c.MetricsPerFigure)
	}
	if c.PaletteSize != nil && *c.PaletteSize < 1 {
		return fmt.Errorf("palette_size must be at least 1, got %d", *c.PaletteSize)
	}
	if c.WindowWidth != nil && *c.WindowWidth < 1 {
		return fmt.Errorf("window_width must be positive, got %d", *c.WindowWidth)
	}
	for name, size := range map[string]*[2]int{"score_figure_size": c.ScoreFigureSize, "plot_size": c.PlotSize} {
		if size != nil && (size[0] <= 0 || size[1] <= 0) {
			return fmt.Errorf("%s must be positive, got %v", name, *size)
		}
	}
	for name, addr := range map[string]*string{"listen": c.Listen, "grpc_listen": c.GRPCListen} {
		if addr == nil || *addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(*addr); err != nil {
			return fmt.Errorf("invalid %s address %q: %w", name, *addr, err)
		}
	}
	return nil
}

// GetListen returns the HTTP listen address or the default.
func (c *BoardConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8090"
	}
	return *c.Listen
}

// GetGRPCListen returns the LayoutService listen address or the default.
func (c *BoardConfig) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return ":50061"
	}
	return *c.GRPCListen
}

// GetDBPath returns the sqlite database path or the default.
func (c *BoardConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "scenario_board.db"
	}
	return *c.DBPath
}

// GetAssetsHost returns the echarts assets host or the default.
func (c *BoardConfig) GetAssetsHost() string {
	if c.AssetsHost == nil || *c.AssetsHost == "" {
		return "https://go-echarts.github.io/go-echarts-assets/assets/"
	}
	return *c.AssetsHost
}

// GetMetricsPerFigure returns how many metrics share one score figure.
func (c *BoardConfig) GetMetricsPerFigure() int {
	if c.MetricsPerFigure == nil {
		return 4
	}
	return *c.MetricsPerFigure
}

// GetScoreFigureSize returns the score figure width and height in pixels.
func (c *BoardConfig) GetScoreFigureSize() (int, int) {
	if c.ScoreFigureSize == nil {
		return 400, 300
	}
	return c.ScoreFigureSize[0], c.ScoreFigureSize[1]
}

// GetPlotSize returns the time-series figure width and height in pixels.
func (c *BoardConfig) GetPlotSize() (int, int) {
	if c.PlotSize == nil {
		return 800, 400
	}
	return c.PlotSize[0], c.PlotSize[1]
}

// GetWindowWidth returns the layout width used to compute grid columns.
func (c *BoardConfig) GetWindowWidth() int {
	if c.WindowWidth == nil {
		return 1600
	}
	return *c.WindowWidth
}

// GetPaletteSize returns the number of distinct series colors.
func (c *BoardConfig) GetPaletteSize() int {
	if c.PaletteSize == nil {
		return 12
	}
	return *c.PaletteSize
}

// GetTimeSeriesXLabel returns the x axis label of time-series figures.
func (c *BoardConfig) GetTimeSeriesXLabel() string {
	if c.TimeSeriesXLabel == nil || *c.TimeSeriesXLabel == "" {
		return "frame"
	}
	return *c.TimeSeriesXLabel
}
