//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-retail-etl.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// DateLayout is the layout of dates in the generate section.
const DateLayout = "2006-01-02"

// Config holds all configuration for pgedge-retail-etl.
type Config struct {
	// Connection is the PostgreSQL connection string of the warehouse.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Source describes where raw data is read from.
	Source SourceConfig `mapstructure:"source"`

	// Transform holds the modeling rules.
	Transform transform.Config `mapstructure:"transform"`

	// Quality holds the gate applied between transform and load.
	Quality QualityConfig `mapstructure:"quality"`

	// Load holds warehouse write settings.
	Load LoadConfig `mapstructure:"load"`

	// Pipeline holds stage retry settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Generate holds configuration for the generate subcommand.
	Generate GenerateConfig `mapstructure:"generate"`
}

// SourceConfig locates the raw inputs.
type SourceConfig struct {
	// SalesCSV is the retail sales CSV file.
	SalesCSV string `mapstructure:"sales_csv"`

	// CatalogURL is the base URL of the product catalog API.
	CatalogURL string `mapstructure:"catalog_url"`

	// CatalogFile is a products JSON file used instead of the API.
	CatalogFile string `mapstructure:"catalog_file"`

	// HTTPTimeout bounds each catalog request.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// Retries is the number of retries per catalog request.
	Retries int `mapstructure:"retries"`
}

// QualityConfig is checked after transform and before load.
type QualityConfig struct {
	// MinRows is the minimum row count per output table.
	MinRows map[string]int `mapstructure:"min_rows"`

	// MaxDropRatio is the largest share of raw sales rows cleaning may
	// drop. Zero disables the check.
	MaxDropRatio float64 `mapstructure:"max_drop_ratio"`
}

// LoadConfig controls warehouse writes.
type LoadConfig struct {
	// Schema is the warehouse schema.
	Schema string `mapstructure:"schema"`

	// BatchSize is the number of rows per COPY.
	BatchSize int `mapstructure:"batch_size"`

	// MaxConns is the connection pool size.
	MaxConns int `mapstructure:"max_conns"`

	// DropExisting drops existing tables before init.
	DropExisting bool `mapstructure:"drop_existing"`
}

// PipelineConfig controls stage retries.
type PipelineConfig struct {
	// MaxTries is the number of attempts per stage.
	MaxTries int `mapstructure:"max_tries"`

	// InitialInterval is the first retry delay.
	InitialInterval time.Duration `mapstructure:"initial_interval"`

	// MaxInterval caps the retry delay.
	MaxInterval time.Duration `mapstructure:"max_interval"`

	// RunLog records each stage in the etl_run_log table.
	RunLog bool `mapstructure:"run_log"`
}

// GenerateConfig holds configuration for sample data generation.
type GenerateConfig struct {
	// Rows is the number of sales rows to generate.
	Rows int `mapstructure:"rows"`

	// Customers is the number of distinct customers.
	Customers int `mapstructure:"customers"`

	// Products is the number of catalog products in the fixture.
	Products int `mapstructure:"products"`

	// StartDate and EndDate bound the sale dates (YYYY-MM-DD).
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`

	// DirtyRatio is the share of rows with a deliberate defect.
	DirtyRatio float64 `mapstructure:"dirty_ratio"`

	// Profile names the seasonal profile sale dates follow.
	Profile string `mapstructure:"profile"`

	// Seed makes the output reproducible. Zero picks a random seed.
	Seed uint64 `mapstructure:"seed"`

	// Output is the sales CSV path.
	Output string `mapstructure:"output"`

	// CatalogOutput is the optional products JSON path.
	CatalogOutput string `mapstructure:"catalog_output"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Source: SourceConfig{
			SalesCSV:    "data/retail_sales_dataset.csv",
			CatalogURL:  "https://fakestoreapi.com",
			HTTPTimeout: 30 * time.Second,
			Retries:     3,
		},
		Transform: transform.DefaultConfig(),
		Quality: QualityConfig{
			MinRows: map[string]int{
				transform.TableStgRetailSales: 100,
				transform.TableDimDate:        365,
				transform.TableDimCustomer:    10,
				transform.TableFactSales:      100,
			},
			MaxDropRatio: 0.5,
		},
		Load: LoadConfig{
			Schema:    "public",
			BatchSize: 5000,
			MaxConns:  4,
		},
		Pipeline: PipelineConfig{
			MaxTries:        3,
			InitialInterval: 5 * time.Second,
			MaxInterval:     time.Minute,
			RunLog:          true,
		},
		Generate: GenerateConfig{
			Rows:       1000,
			Customers:  400,
			Products:   20,
			StartDate:  "2023-01-01",
			EndDate:    "2023-12-31",
			DirtyRatio: 0.03,
			Profile:    "retail-seasonal",
			Output:     "data/retail_sales_dataset.csv",
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-retail-etl.yaml
// 3. ~/.config/pgedge-retail-etl/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-retail-etl")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-retail-etl"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateTransform checks configuration required to extract and
// transform without a warehouse.
func (c *Config) ValidateTransform() error {
	if c.Source.SalesCSV == "" {
		return fmt.Errorf("source.sales_csv is required")
	}
	if c.Source.Retries < 0 {
		return fmt.Errorf("source.retries must be non-negative")
	}
	if c.Source.CatalogURL != "" && c.Source.HTTPTimeout <= 0 {
		return fmt.Errorf("source.http_timeout must be positive")
	}
	if err := c.Transform.Validate(); err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	return nil
}

// ValidateRun checks configuration required for the run command.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.ValidateTransform(); err != nil {
		return err
	}
	if c.Pipeline.MaxTries < 1 {
		return fmt.Errorf("pipeline.max_tries must be at least 1")
	}
	if c.Quality.MaxDropRatio < 0 || c.Quality.MaxDropRatio > 1 {
		return fmt.Errorf("quality.max_drop_ratio must be between 0 and 1")
	}
	for table, n := range c.Quality.MinRows {
		if n < 0 {
			return fmt.Errorf("quality.min_rows.%s must be non-negative", table)
		}
	}
	if c.Load.BatchSize < 1 {
		return fmt.Errorf("load.batch_size must be at least 1")
	}
	return nil
}

// ValidateGenerate checks configuration required for the generate command.
func (c *Config) ValidateGenerate() error {
	g := c.Generate
	if g.Rows < 1 {
		return fmt.Errorf("generate.rows must be at least 1")
	}
	if g.Customers < 1 {
		return fmt.Errorf("generate.customers must be at least 1")
	}
	if g.Products < 0 {
		return fmt.Errorf("generate.products must be non-negative")
	}
	if g.DirtyRatio < 0 || g.DirtyRatio > 1 {
		return fmt.Errorf("generate.dirty_ratio must be between 0 and 1")
	}
	if g.Output == "" {
		return fmt.Errorf("generate.output is required")
	}
	if g.Profile == "" {
		return fmt.Errorf("generate.profile is required")
	}
	start, end, err := g.DateRange()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("generate.end_date must not be before start_date")
	}
	return nil
}

// DateRange parses the generate date bounds.
func (g GenerateConfig) DateRange() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, g.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid generate.start_date: %w", err)
	}
	end, err := time.Parse(DateLayout, g.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid generate.end_date: %w", err)
	}
	return start, end, nil
}
