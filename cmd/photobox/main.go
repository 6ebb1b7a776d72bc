package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"photobox/internal/app"
	"photobox/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a PhotoboxApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "serve", "history").
func newApp(ctx context.Context, operation string) (*app.PhotoboxApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase reads a passphrase from passphraseFile, or from the terminal
// with echo disabled when no file is given. confirm asks for it twice.
func readPassphrase(passphraseFile string, confirm bool) (string, error) {
	if passphraseFile != "" {
		data, err := os.ReadFile(passphraseFile)
		if err != nil {
			return "", fmt.Errorf("reading passphrase file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available for passphrase prompt (use --passphrase-file)")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}

var rootCmd = &cobra.Command{
	Use:          "photobox",
	Short:        "Photo submission intake service",
	SilenceUsage: true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP intake service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.ListenAndServe(ctx)
	},
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Clear scratch artifacts left by interrupted runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Sweep()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d artifact(s)\n", n)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Listen:      %s\n", cfg.Server.Listen)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Scratch:     %s\n", cfg.Scratch.Type)
		fmt.Printf("Dispatch:    %s\n", cfg.Dispatch.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Dispatch.Encryption.Type)
		return nil
	},
}

// records command
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect persisted submission records",
}

var recordsFindCmd = &cobra.Command{
	Use:   "find FINGERPRINT",
	Short: "Find records by fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "records-find")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.FindRecords(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No records found.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("#%d  %s  %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Fingerprint)
		}
		return nil
	},
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent records",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "records-list")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ListRecords(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No records found.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("#%d  %s  %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Fingerprint)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View pipeline run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %s  %-10s  %-10s  %s\n",
				r.ID,
				r.RunID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.State,
				duration,
				r.Error,
			)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		passphraseFile, _ := cmd.Flags().GetString("passphrase-file")
		passphrase, err := readPassphrase(passphraseFile, passphraseFile == "")
		if err != nil {
			return err
		}

		recipient, err := app.InitKeys(cfg.Dispatch.Encryption, passphrase)
		if err != nil {
			return err
		}

		fmt.Printf("Recipient:   %s\n", recipient)
		fmt.Printf("Public key:  %s\n", cfg.Dispatch.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Dispatch.Encryption.PrivateKeyPath)
		return nil
	},
}

var keysDecryptCmd = &cobra.Command{
	Use:   "decrypt IN OUT",
	Short: "Decrypt a stored archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		passphraseFile, _ := cmd.Flags().GetString("passphrase-file")
		passphrase, err := readPassphrase(passphraseFile, false)
		if err != nil {
			return err
		}

		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer in.Close()

		out, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[1], err)
		}

		if err := app.DecryptArchive(cfg.Dispatch.Encryption, passphrase, in, out); err != nil {
			out.Close()
			os.Remove(args[1])
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", args[1], err)
		}

		fmt.Printf("Decrypted %s -> %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// records subcommands
	recordsCmd.AddCommand(recordsFindCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show (0 for all)")

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysDecryptCmd)
	keysCmd.PersistentFlags().String("passphrase-file", "", "Read the passphrase from a file instead of the terminal")

	// root commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show (0 for all)")
	rootCmd.AddCommand(keysCmd)
}
