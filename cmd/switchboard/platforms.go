package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var platformsFlags struct {
	clientConfig
	json bool
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List supported platforms and their limits",
	RunE:  runPlatforms,
}

func init() {
	rootCmd.AddCommand(platformsCmd)

	addClientFlags(platformsCmd, &platformsFlags.clientConfig)
	platformsCmd.Flags().BoolVar(&platformsFlags.json, "json", false, "print full limits as JSON")
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	c, err := platformsFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListPlatforms(cmd.Context())
	if err != nil {
		return err
	}
	if platformsFlags.json {
		return printJSON(resp)
	}

	fmt.Printf("%-10s  %-20s  %-6s  %-6s  %-6s  %s\n", "ID", "NAME", "TEXT", "IMAGES", "VIDEOS", "MIME TYPES")
	for _, p := range resp.Platforms {
		fmt.Printf("%-10s  %-20s  %-6d  %-6d  %-6d  %s\n", p.ID, p.DisplayName,
			p.Limits.MaxTextLength, p.Limits.MaxImages, p.Limits.MaxVideos,
			strings.Join(p.Limits.SupportedMIMETypes, ","))
	}
	return nil
}
