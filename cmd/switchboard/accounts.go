package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/api"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected platform accounts",
}

var accountsFlags struct {
	clientConfig
}

var connectFlags struct {
	req       api.ConnectAccountRequest
	expiresIn time.Duration
}

var accountsConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect an account with tokens obtained from the platform's OAuth flow",
	RunE:  runAccountsConnect,
}

var accountsListFlags struct {
	userID string
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts",
	RunE:  runAccountsList,
}

var accountsDeleteCmd = &cobra.Command{
	Use:   "delete <account-id>",
	Short: "Disconnect an account and delete its stored tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := accountsFlags.newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteAccount(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted account: %s\n", args[0])
		return nil
	},
}

var accountsRefreshCmd = &cobra.Command{
	Use:   "refresh <account-id>",
	Short: "Refresh an account's access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := accountsFlags.newClient()
		if err != nil {
			return err
		}
		resp, err := c.RefreshAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if resp.Refreshed {
			fmt.Println("Token refreshed.")
		} else {
			fmt.Println("Token refresh not supported for this account.")
		}
		return nil
	},
}

var accountsCheckCmd = &cobra.Command{
	Use:   "check <account-id>",
	Short: "Check whether an account's access token is still accepted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := accountsFlags.newClient()
		if err != nil {
			return err
		}
		resp, err := c.ValidateToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !resp.Valid {
			return fmt.Errorf("token for %s is no longer valid", args[0])
		}
		fmt.Println("Token is valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsConnectCmd, accountsListCmd, accountsDeleteCmd, accountsRefreshCmd, accountsCheckCmd)

	accountsCmd.PersistentFlags().StringVar(&accountsFlags.apiKey, "api-key", "", "API key for authentication (env SWITCHBOARD_API_KEY)")
	accountsCmd.PersistentFlags().StringVar(&accountsFlags.apiURL, "api-url", "", "API server URL (env SWITCHBOARD_API_URL)")

	f := accountsConnectCmd.Flags()
	f.StringVar(&connectFlags.req.UserID, "user", "", "owning user ID")
	f.StringVar(&connectFlags.req.Platform, "platform", "", "facebook, instagram, tiktok, youtube or whatsapp")
	f.StringVar(&connectFlags.req.PlatformAccountID, "account-id", "", "page, user, channel or Twilio account SID")
	f.StringVar(&connectFlags.req.PlatformAccountName, "name", "", "display name")
	f.StringVar(&connectFlags.req.AccessToken, "access-token", "", "access token (Twilio auth token for whatsapp)")
	f.StringVar(&connectFlags.req.RefreshToken, "refresh-token", "", "refresh token, if the platform issues one")
	f.DurationVar(&connectFlags.expiresIn, "expires-in", 0, "access token lifetime")
	f.StringToStringVar(&connectFlags.req.Metadata, "meta", nil, "account metadata key=value (e.g. from=+15550001111)")
	for _, name := range []string{"user", "platform", "account-id", "access-token"} {
		_ = accountsConnectCmd.MarkFlagRequired(name)
	}

	accountsListCmd.Flags().StringVar(&accountsListFlags.userID, "user", "", "only accounts of this user")
}

func runAccountsConnect(cmd *cobra.Command, args []string) error {
	c, err := accountsFlags.newClient()
	if err != nil {
		return err
	}
	req := connectFlags.req
	if connectFlags.expiresIn > 0 {
		exp := time.Now().Add(connectFlags.expiresIn).UTC()
		req.TokenExpiresAt = &exp
	}

	acct, err := c.ConnectAccount(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Printf("Connected account: %s\n", acct.ID)
	return nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	c, err := accountsFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListAccounts(cmd.Context(), accountsListFlags.userID)
	if err != nil {
		return err
	}
	if len(resp.Accounts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-16s  %-20s  %-8s  %s\n", "ID", "PLATFORM", "USER", "ACCOUNT", "STATUS", "EXPIRES")
	for _, a := range resp.Accounts {
		expires := "-"
		if a.TokenExpiresAt != nil {
			expires = a.TokenExpiresAt.Format("2006-01-02 15:04:05")
		}
		name := a.PlatformAccountID
		if a.PlatformAccountName != "" {
			name = a.PlatformAccountName
		}
		fmt.Printf("%-36s  %-10s  %-16s  %-20s  %-8s  %s\n", a.ID, a.Platform, a.UserID, name, a.Status, expires)
	}
	return nil
}
