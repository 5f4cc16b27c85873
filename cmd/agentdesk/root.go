package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agentdesk",
		Short: "Multi-agent customer support desk",
		Long: `agentdesk answers customer messages with a router that hands each
message to an order, billing or support agent. Agents look up orders,
payments and FAQs through tools before replying.

Configuration is read from config.yaml; AGENTDESK_* variables and
GOOGLE_GENERATIVE_AI_API_KEY / OPENAI_API_KEY override it.`,
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "config file path")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSeedCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}
