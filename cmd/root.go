// Package cmd contains the answerbot command-line entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "answerbot",
	Short: "Slack Q&A assistant for programming courses",
	Long: `answerbot answers student questions mentioned at it in Slack.

The event server (answerbot serve) receives Slack mentions, enforces
per-user quotas, and queues accepted questions. Workers (answerbot work)
consume the queue, generate answers with a Gemini model, and reply in
the mention's thread.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
