package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var publishFlags struct {
	clientConfig
	payload payloadFlags
}

var publishCmd = &cobra.Command{
	Use:   "publish <account-id>",
	Short: "Publish a post through a connected account",
	Long: `Publish a post through a connected account. The payload is validated
against the platform's limits first; an invalid payload is never sent.

For WhatsApp, pass the recipient with --option to=+15551234567.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	addClientFlags(publishCmd, &publishFlags.clientConfig)
	addPayloadFlags(publishCmd, &publishFlags.payload)
}

func runPublish(cmd *cobra.Command, args []string) error {
	c, err := publishFlags.newClient()
	if err != nil {
		return err
	}
	p, err := publishFlags.payload.build()
	if err != nil {
		return err
	}

	resp, err := c.Publish(cmd.Context(), args[0], p)
	if err != nil {
		return err
	}

	if !resp.Validation.Valid {
		fmt.Println("Payload rejected:")
		for _, e := range resp.Validation.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("validation failed")
	}
	if !resp.Result.Success {
		e := resp.Result.Error
		retry := ""
		if e.Retryable {
			retry = " (retryable)"
		}
		return fmt.Errorf("publish failed: %s: %s%s", e.Code, e.Message, retry)
	}

	fmt.Printf("Published: %s\n", resp.Result.PlatformPostID)
	if resp.Result.PlatformPostURL != "" {
		fmt.Printf("URL:       %s\n", resp.Result.PlatformPostURL)
	}
	return nil
}
