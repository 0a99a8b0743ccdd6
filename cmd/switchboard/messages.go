package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var messagesFlags struct {
	clientConfig
}

var messagesCmd = &cobra.Command{
	Use:   "messages <phone>",
	Short: "Show WhatsApp messages and delivery status for a phone number",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessages,
}

func init() {
	rootCmd.AddCommand(messagesCmd)

	addClientFlags(messagesCmd, &messagesFlags.clientConfig)
}

func runMessages(cmd *cobra.Command, args []string) error {
	c, err := messagesFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListMessages(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(resp.Messages) == 0 {
		fmt.Println("No messages found.")
		return nil
	}

	fmt.Printf("%-20s  %-8s  %-34s  %-10s  %s\n", "CREATED", "DIR", "SID", "STATUS", "ERROR")
	for _, m := range resp.Messages {
		sid := m.ProviderMessageID
		if sid == "" {
			sid = "-"
		}
		errInfo := "-"
		if m.ErrorCode != "" {
			errInfo = m.ErrorCode + " " + m.ErrorMessage
		}
		fmt.Printf("%-20s  %-8s  %-34s  %-10s  %s\n", m.CreatedAt, m.Direction, sid, m.Status, errInfo)
	}
	return nil
}
