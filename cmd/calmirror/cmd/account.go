package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theakshaypant/calmirror/internal/account"
	"github.com/theakshaypant/calmirror/internal/config"
	"github.com/theakshaypant/calmirror/internal/token"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"accounts"},
	Short:   "Manage configured accounts",
	Long: `Manage the accounts calmirror mirrors. Each account names its provider
and the files holding its OAuth client settings and token.`,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show account settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAccountShow,
}

var accountAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a new account",
	Long: `Add a new account to the config file.

Example:
  calmirror account add work --provider=google --credentials-file=~/.config/calmirror/work.json
  calmirror account add corp --provider=outlook --client-id=<app id> --tenant-id=<tenant>`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountAdd,
}

var accountDefaultCmd = &cobra.Command{
	Use:   "default <id>",
	Short: "Set the default account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountDefault,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountDefaultCmd)

	accountAddCmd.Flags().String("provider", "google", "calendar provider (google, outlook)")
	accountAddCmd.Flags().String("credentials-file", "", "Google OAuth client credentials")
	accountAddCmd.Flags().String("token-file", "", "where the OAuth token is kept (default ~/.config/calmirror/<id>-token.json)")
	accountAddCmd.Flags().String("client-id", "", "Azure app client id (outlook)")
	accountAddCmd.Flags().String("tenant-id", "", "Azure tenant id (outlook, default common)")
}

func runAccountList(cmd *cobra.Command, args []string) error {
	accounts := viper.GetStringMap("accounts")
	defaultAccount := viper.GetString("default_account")
	out := cmd.OutOrStdout()

	if len(accounts) == 0 {
		fmt.Fprintln(out, "No accounts configured.")
		fmt.Fprintln(out, "\nAdd one with: calmirror account add <id> --provider=google --credentials-file=<path>")
		return nil
	}

	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(out, "Configured accounts:")
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	for _, id := range ids {
		marker := "  "
		if id == defaultAccount {
			marker = "* "
		}
		fmt.Fprintf(out, "%s%-20s %s\n", marker, id, viper.GetString("accounts."+id+".provider"))
	}
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	if defaultAccount != "" {
		fmt.Fprintf(out, "Default: %s\n", defaultAccount)
	}
	fmt.Fprintln(out, "\nUse 'calmirror account show <id>' for details")
	return nil
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	id := accountID
	if len(args) > 0 {
		id = args[0]
	}
	acc, err := cfg.Account(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account: %s\n", acc.ID)
	if acc.ID == cfg.DefaultAccount {
		fmt.Fprintln(out, "(default)")
	}
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	fmt.Fprintf(out, "  provider: %s\n", acc.Provider)
	if acc.CredentialsFile != "" {
		fmt.Fprintf(out, "  credentials-file: %s\n", acc.CredentialsFile)
	}
	if acc.ClientID != "" {
		fmt.Fprintf(out, "  client-id: %s\n", acc.ClientID)
	}
	if acc.TenantID != "" {
		fmt.Fprintf(out, "  tenant-id: %s\n", acc.TenantID)
	}
	fmt.Fprintf(out, "  token-file: %s\n", acc.TokenFile)

	tok, err := token.Load(acc.TokenFile)
	switch {
	case err != nil:
		fmt.Fprintln(out, "\n🔐 Not authenticated, run 'calmirror auth -a "+acc.ID+"'")
	case tok.RefreshToken == "":
		fmt.Fprintln(out, "\n⚠️  Token has no refresh token and will stop working when it expires")
	default:
		fmt.Fprintln(out, "\n✅ Authenticated")
	}
	return nil
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	id := args[0]
	if viper.IsSet("accounts." + id) {
		return fmt.Errorf("account '%s' already exists", id)
	}

	provider, _ := cmd.Flags().GetString("provider")
	credentials, _ := cmd.Flags().GetString("credentials-file")
	tokenFile, _ := cmd.Flags().GetString("token-file")
	clientID, _ := cmd.Flags().GetString("client-id")
	tenantID, _ := cmd.Flags().GetString("tenant-id")
	if tokenFile == "" {
		tokenFile = "~/.config/calmirror/" + id + "-token.json"
	}

	acc := account.Config{
		ID:              id,
		Provider:        provider,
		CredentialsFile: credentials,
		TokenFile:       tokenFile,
		ClientID:        clientID,
		TenantID:        tenantID,
	}
	switch provider {
	case "google":
		if credentials == "" {
			return fmt.Errorf("--credentials-file is required for google accounts")
		}
	case "outlook":
		if clientID == "" {
			return fmt.Errorf("--client-id is required for outlook accounts")
		}
	default:
		return fmt.Errorf("unknown provider: %s (supported: google, outlook)", provider)
	}

	f := config.File{Path: configPath()}
	if err := f.SaveAccount(acc); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if viper.GetString("default_account") == "" && len(viper.GetStringMap("accounts")) == 0 {
		if err := f.SetDefaultAccount(id); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Account '%s' added to %s\n", id, f.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "\nNext: calmirror auth -a %s\n", id)
	return nil
}

func runAccountDefault(cmd *cobra.Command, args []string) error {
	id := args[0]
	if !viper.IsSet("accounts." + id) {
		return fmt.Errorf("account '%s' not found", id)
	}
	f := config.File{Path: configPath()}
	if err := f.SetDefaultAccount(id); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Default account set to '%s'\n", id)
	return nil
}
