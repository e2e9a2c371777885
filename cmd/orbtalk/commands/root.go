// Package commands implements the orbtalk command tree.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "orbtalk",
	Short: "Talk to a voice model from the terminal",
	Long: `orbtalk - a real-time voice client.

It captures the microphone, streams it to the chat endpoint of a
model-serving host, and plays back the spoken reply while showing the
live transcript.

Without a subcommand orbtalk starts a conversation (same as 'orbtalk chat').

Examples:
  # Use the endpoint from orbtalk.yaml
  orbtalk

  # Talk to a host directly, no config file needed
  orbtalk chat --origin https://voice.example.com

  # Pick devices by name from this list
  orbtalk devices`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "orbtalk.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	addChatFlags(rootCmd)
}
