package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/agentdesk/internal/registry"
)

var seedBackend string

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Upload a YAML registry of agents and chains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, err := registry.LoadFile(args[0])
		if err != nil {
			return err
		}
		loader := registry.NewLoader(orEnv(seedBackend, "BACKEND_URL", "http://localhost:8080"), nil, 0, logger)
		if err := loader.Publish(cmd.Context(), seed); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d agents and %d chains for %s\n",
			len(seed.Agents), len(seed.Chains), seed.WebsiteID)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedBackend, "backend", "", "backend URL (BACKEND_URL)")
	rootCmd.AddCommand(seedCmd)
}
