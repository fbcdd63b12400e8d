package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/storage/postgres"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage taskboard configuration",
}

var configInitPath string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSkeleton(configInitPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configInitPath)
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database administration",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the schema if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, ok := store.(*postgres.Store)
		if !ok {
			return fmt.Errorf("db init requires the postgres backend (configured: %s)", cfg.Storage.Backend)
		}
		if err := pg.Init(rootCtx); err != nil {
			return err
		}
		fmt.Println("Schema ready")
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitPath, "output", "o", "taskboard.yaml", "where to write the config file")

	configCmd.AddCommand(configInitCmd)
	dbCmd.AddCommand(dbInitCmd)
	rootCmd.AddCommand(configCmd, dbCmd)
}
