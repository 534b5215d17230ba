package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fulcrum-hq/portunus/pkg/cli"
	"fulcrum-hq/portunus/pkg/config"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/storage"
)

var keysFlags struct {
	username    string
	groups      []string
	name        string
	expiresDays int
	format      string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Create and list API keys directly against the configured database.

The subcommands bypass the admin API, so they work before the server is
running. Use them to bootstrap the first admin key on a fresh install;
after that the /admin endpoints cover day-to-day key management.

Examples:
  # Bootstrap the first admin user and key
  portunus keys create --username admin --groups admin

  # Mint a scoped key for a CI pipeline, valid 90 days
  portunus keys create --username ci-bot --groups builders --name "ci" --expires-days 90

  # List a user's keys
  portunus keys list --username admin`,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key",
	Long: `Create an API key for a user, creating the user if necessary.

The plaintext key is printed exactly once; only its hash is stored.
When the named user does not exist it is created with the groups given
by --groups. For an existing user --groups is ignored.`,
	RunE: createKey,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's API keys",
	Long:  `List the API keys stored for a user. Plaintext keys are never shown.`,
	RunE:  listKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd)

	keysCreateCmd.Flags().StringVarP(&keysFlags.username, "username", "u", "", "user the key belongs to (required)")
	keysCreateCmd.Flags().StringSliceVar(&keysFlags.groups, "groups", nil, "groups for a newly created user")
	keysCreateCmd.Flags().StringVar(&keysFlags.name, "name", "default", "human-readable key name")
	keysCreateCmd.Flags().IntVar(&keysFlags.expiresDays, "expires-days", 0, "days until the key expires (0 = never)")
	_ = keysCreateCmd.MarkFlagRequired("username")

	keysListCmd.Flags().StringVarP(&keysFlags.username, "username", "u", "", "user whose keys to list (required)")
	keysListCmd.Flags().StringVar(&keysFlags.format, "format", "text", "output format: text, json")
	_ = keysListCmd.MarkFlagRequired("username")
}

// openStore loads the configuration and opens the storage backend the
// server would use.
func openStore() (storage.Store, *config.Config, error) {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := storage.Open(storageConfig(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, cfg, nil
}

func createKey(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ids := identity.NewService(store, nil)

	user, err := ids.GetUserByUsername(ctx, keysFlags.username)
	switch {
	case identity.IsNotFound(err):
		user, err = ids.Provision(ctx, keysFlags.username, keysFlags.groups)
		if err != nil {
			return cli.NewCommandError("keys create", fmt.Errorf("creating user %s: %w", keysFlags.username, err))
		}
		fmt.Printf("✓ User %s created (groups: %s)\n", user.Username, strings.Join(user.Groups, ", "))
	case err != nil:
		return cli.NewCommandError("keys create", fmt.Errorf("looking up user %s: %w", keysFlags.username, err))
	default:
		if len(keysFlags.groups) > 0 {
			fmt.Printf("User %s already exists, ignoring --groups\n", user.Username)
		}
	}

	var expiresAt *time.Time
	if keysFlags.expiresDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, keysFlags.expiresDays)
		expiresAt = &t
	}

	created, err := ids.CreateAPIKey(ctx, user.ID, keysFlags.name, expiresAt)
	if err != nil {
		return cli.NewCommandError("keys create", err)
	}

	fmt.Println()
	fmt.Printf("✓ API key created for %s\n", user.Username)
	fmt.Println()
	fmt.Printf("    %s\n", created.Key)
	fmt.Println()
	if created.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", created.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Println("This key is shown once and cannot be recovered. Store it securely.")
	return nil
}

func listKeys(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ids := identity.NewService(store, nil)

	user, err := ids.GetUserByUsername(ctx, keysFlags.username)
	if err != nil {
		return cli.NewCommandError("keys list", err)
	}

	keys, err := ids.ListAPIKeys(ctx, user.ID)
	if err != nil {
		return cli.NewCommandError("keys list", err)
	}

	if keysFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, keys)
	}

	if len(keys) == 0 {
		fmt.Printf("No API keys for %s\n", user.Username)
		return nil
	}

	fmt.Printf("API keys for %s (groups: %s)\n\n", user.Username, strings.Join(user.Groups, ", "))
	for _, k := range keys {
		status := "active"
		if !k.IsActive {
			status = "revoked"
		} else if k.ExpiresAt != nil && !time.Now().Before(*k.ExpiresAt) {
			status = "expired"
		}

		name := k.Name
		if name == "" {
			name = "(unnamed)"
		}

		line := fmt.Sprintf("  #%d  %-20s %s", k.ID, name, status)
		if k.ExpiresAt != nil {
			line += fmt.Sprintf("  expires %s", k.ExpiresAt.UTC().Format("2006-01-02"))
		}
		if k.LastUsedAt != nil {
			line += fmt.Sprintf("  last used %s", k.LastUsedAt.UTC().Format("2006-01-02"))
		}
		fmt.Println(line)
	}
	return nil
}
