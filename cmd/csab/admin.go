package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyperengineering/csab/internal/config"
	"github.com/hyperengineering/csab/internal/store"
	"github.com/spf13/cobra"
)

var (
	adminName     string
	adminPassword string
	jsonOutput    bool
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin credentials",
	Long:  "Create admins allowed to upload and ingest company data, without running the server.",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin",
	Long:  "Create an admin. The password is read from the first line of stdin when --password is omitted.",
	Args:  cobra.NoArgs,
	RunE:  runAdminCreate,
}

func init() {
	adminCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "Admin name")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "",
		"Admin password (prefer stdin to keep it out of shell history)")
	adminCreateCmd.MarkFlagRequired("name")

	adminCmd.AddCommand(adminCreateCmd)
}

func runAdminCreate(cmd *cobra.Command, args []string) error {
	password := adminPassword
	if password == "" {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if scanner.Scan() {
			password = strings.TrimRight(scanner.Text(), "\r")
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}
	if adminName == "" || password == "" {
		return errors.New("admin name and password are required")
	}

	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openStore(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	admin, err := db.CreateAdmin(cmd.Context(), adminName, password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAdmin) {
			return fmt.Errorf("admin %q already exists", adminName)
		}
		return err
	}
	slog.Info("admin created", "component", "cli", "action", "admin_create", "admin", admin.Name)

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), admin)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created admin %q\n", admin.Name)
	return nil
}

// loadCLIConfig loads configuration and sends logs to stderr so command
// output on stdout stays clean.
func loadCLIConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Log, cmd.ErrOrStderr()))
	return cfg, nil
}
