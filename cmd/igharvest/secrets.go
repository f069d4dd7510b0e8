package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"igharvest/pkg/secrets"
	"igharvest/pkg/ui"
)

var revealSecret bool

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage stored secrets",
	Long: `Manage secrets outside the configuration file.

Secrets are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (IGHARVEST_<NAME>, read-only)

Known names: ` + strings.Join(secrets.Names(), ", "),
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name> [value]",
	Short: "Store a secret",
	Long: `Store a secret. Without a value argument you are prompted for it with echo
disabled, which keeps the value out of your shell history.`,
	Example: `  igharvest secrets set provider_token
  echo "$TOKEN" | igharvest secrets set provider_token`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSecretsSet,
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a stored secret (masked unless --reveal)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsGet,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsDelete,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	Args:  cobra.NoArgs,
	RunE:  runSecretsList,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsGetCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
	secretsCmd.AddCommand(secretsListCmd)

	secretsGetCmd.Flags().BoolVar(&revealSecret, "reveal", false, "print the full value")
}

func secretsManager() (*secrets.Manager, error) {
	manager, err := secrets.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize secret stores", err.Error())
		return nil, err
	}
	return manager, nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !secrets.IsKnown(name) {
		return fmt.Errorf("unknown secret %q (known: %s)", name, strings.Join(secrets.Names(), ", "))
	}

	manager, err := secretsManager()
	if err != nil {
		return err
	}

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		value, err = readSecret(fmt.Sprintf("%s: ", name))
		if err != nil {
			return err
		}
	}
	if value == "" {
		return fmt.Errorf("value for %s cannot be empty", name)
	}

	if err := manager.Set(name, value); err != nil {
		ui.PrintError("Failed to store secret", err.Error())
		return err
	}
	ui.PrintSuccess("Stored " + name)
	return nil
}

func runSecretsGet(cmd *cobra.Command, args []string) error {
	manager, err := secretsManager()
	if err != nil {
		return err
	}

	value, err := manager.Get(args[0])
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			ui.PrintWarning("Secret not set", args[0])
		}
		return err
	}

	if !revealSecret {
		value = secrets.Mask(value)
	}
	ui.PrintInfo(args[0], value)
	return nil
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	manager, err := secretsManager()
	if err != nil {
		return err
	}

	if err := manager.Delete(args[0]); err != nil {
		ui.PrintError("Failed to delete secret", err.Error())
		return err
	}
	ui.PrintSuccess("Deleted " + args[0])
	return nil
}

func runSecretsList(cmd *cobra.Command, args []string) error {
	manager, err := secretsManager()
	if err != nil {
		return err
	}

	names, err := manager.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		ui.PrintWarning("No secrets stored")
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(ui.Output, n)
	}
	return nil
}
