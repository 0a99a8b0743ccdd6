package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateFlags struct {
	clientConfig
	payload payloadFlags
}

var validateCmd = &cobra.Command{
	Use:   "validate <platform>",
	Short: "Check a payload against a platform's limits",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addClientFlags(validateCmd, &validateFlags.clientConfig)
	addPayloadFlags(validateCmd, &validateFlags.payload)
}

func runValidate(cmd *cobra.Command, args []string) error {
	c, err := validateFlags.newClient()
	if err != nil {
		return err
	}
	p, err := validateFlags.payload.build()
	if err != nil {
		return err
	}

	v, err := c.Validate(cmd.Context(), args[0], p)
	if err != nil {
		return err
	}
	if v.Valid {
		fmt.Println("valid")
		return nil
	}
	for _, e := range v.Errors {
		fmt.Printf("  - %s\n", e)
	}
	return fmt.Errorf("payload is not valid for %s", args[0])
}
