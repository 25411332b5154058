package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/warehouse"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the warehouse tables",
	Long: `Create the staging, dimension, fact and mart tables plus the run log
in the warehouse schema. Existing tables are kept unless --drop-existing
is given, which also discards all dimension history.

Example:
  pgedge-retail-etl init --connection "postgres://..." --schema retail`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing warehouse tables before initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if initDropExisting {
		cfg.Load.DropExisting = true
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Connection, int32(cfg.Load.MaxConns))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	wh := warehouse.New(pool, warehouse.Options{Schema: cfg.Load.Schema})

	// Refuse to silently reuse a warehouse initialized for another schema
	existing, err := db.GetMetadataValue(ctx, pool, db.KeySchema)
	if err == nil && existing != "" && existing != wh.Schema() && !cfg.Load.DropExisting {
		return fmt.Errorf(
			"database was initialized for schema '%s' but '%s' was specified; "+
				"use --drop-existing to reinitialize",
			existing, wh.Schema())
	}

	if cfg.Load.DropExisting {
		logging.Warn().Str("schema", wh.Schema()).Msg("Dropping existing warehouse tables")
		if err := wh.DropSchema(ctx); err != nil {
			return err
		}
		if err := db.DropMetadata(ctx, pool); err != nil {
			logging.Debug().Err(err).Msg("No metadata table to drop")
		}
	}

	logging.Info().Str("schema", wh.Schema()).Msg("Creating warehouse tables")
	if err := wh.CreateSchema(ctx); err != nil {
		return err
	}

	if err := db.SaveMetadata(ctx, pool, wh.Schema()); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.Info().
		Str("schema", wh.Schema()).
		Msg("Warehouse initialization complete")
	return nil
}
