package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/auth"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/db"
)

var apikeyFlags struct {
	dbPath string
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Create an API key",
	Long:  `Create a new API key in the database and print it. The key is shown only once.`,
	RunE:  runAPIKey,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)

	apikeyCmd.Flags().StringVar(&apikeyFlags.dbPath, "db", "", "database path (env SWITCHBOARD_DB)")
}

func runAPIKey(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if apikeyFlags.dbPath != "" {
		cfg.DBPath = apikeyFlags.dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	displayKey, err := createAPIKey(database)
	if err != nil {
		return err
	}
	fmt.Println(displayKey)
	return nil
}

func createAPIKey(database *sql.DB) (string, error) {
	displayKey, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	if _, err := db.CreateAPIKey(database, prefix, hash); err != nil {
		return "", fmt.Errorf("create API key: %w", err)
	}
	return displayKey, nil
}
