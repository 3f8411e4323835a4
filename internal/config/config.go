package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when --config is not given.
const DefaultConfigFile = "castrank.yaml"

// Config holds all castrank configuration.
type Config struct {
	// Intermediate artifacts and the promoted result
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Stage 1
	GroupCount GroupCountConfig `yaml:"group_count"`

	// Stage 2
	RankSort RankSortConfig `yaml:"rank_sort"`

	// Optional SQLite export
	Store StoreConfig `yaml:"store"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the SQLite export of ranked results.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // empty = no export
	TopN       int    `yaml:"top_n"`       // records kept in memory for the summary
}

// WatchConfig configures `castrank watch`.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:         "output/PartTwo",
			Stage2Subdir: "job2",
			PartName:     "part-r-00000",
			ResultPath:   "OutputDataForPartTwo",
		},
		GroupCount: GroupCountConfig{
			Workers:          0,
			ChunkLines:       8192,
			OutputPartitions: 1,
		},
		RankSort: RankSortConfig{
			Emit:             "key",
			Sentinel:         "success",
			OutputPartitions: 1,
		},
		Store: StoreConfig{
			TopN: 10,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// YAML renders the configuration, e.g. for --dump-config.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CASTRANK_ROOT"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("CASTRANK_RESULT"); v != "" {
		c.Workspace.ResultPath = v
	}
	if v := os.Getenv("CASTRANK_EMIT"); v != "" {
		c.RankSort.Emit = v
	}
	if v := os.Getenv("CASTRANK_WORKERS"); v != "" {
		// Ignore garbage; Validate reports the configured value instead.
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.GroupCount.Workers = n
		}
	}
	if v := os.Getenv("CASTRANK_SQLITE"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("CASTRANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// ValidEmitModes lists the accepted rank_sort.emit values.
var ValidEmitModes = []string{"key", "sentinel"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Workspace.validate(); err != nil {
		return err
	}
	if c.GroupCount.OutputPartitions != 1 {
		return fmt.Errorf("group_count.output_partitions must be 1 (got %d): single-partition output only", c.GroupCount.OutputPartitions)
	}
	if c.RankSort.OutputPartitions != 1 {
		return fmt.Errorf("rank_sort.output_partitions must be 1 (got %d): single-partition output only", c.RankSort.OutputPartitions)
	}
	if c.GroupCount.Workers < 0 {
		return fmt.Errorf("group_count.workers must be >= 0 (0 = one per CPU)")
	}
	if c.GroupCount.ChunkLines < 0 {
		return fmt.Errorf("group_count.chunk_lines must be >= 0")
	}

	validEmit := false
	for _, m := range ValidEmitModes {
		if c.RankSort.Emit == m {
			validEmit = true
			break
		}
	}
	if !validEmit {
		return fmt.Errorf("invalid rank_sort.emit: %s (valid: %v)", c.RankSort.Emit, ValidEmitModes)
	}
	if c.RankSort.Emit == "sentinel" && strings.ContainsAny(c.RankSort.Sentinel, "\t\n") {
		return fmt.Errorf("rank_sort.sentinel must not contain tabs or newlines")
	}

	if c.Store.TopN < 0 {
		return fmt.Errorf("store.top_n must be >= 0")
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
		}
	}
	return nil
}
