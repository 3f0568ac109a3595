package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historySession string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sessions, or print one transcript with --session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		api := newAPIClient()
		out := cmd.OutOrStdout()

		if historySession != "" {
			messages, err := api.Messages(cmd.Context(), userID, historySession)
			if err != nil {
				return err
			}
			for _, message := range messages {
				printMessage(out, string(message.Sender), message.Content)
			}
			return nil
		}

		sessions, err := api.Sessions(cmd.Context(), userID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTATUS\tMESSAGES\tLAST ACTIVITY")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.SessionID, s.Status, s.MessageCount, s.LastActivity.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var endSummary string

var endCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newAPIClient().EndSession(cmd.Context(), args[0], endSummary)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s %s (%d messages)\n", session.SessionID, session.Status, session.MessageCount)
		if session.MoodAnalysis != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "overall sentiment %.2f, topics %v\n",
				session.MoodAnalysis.OverallSentiment, session.MoodAnalysis.KeyTopics)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "session id to print")
	endCmd.Flags().StringVar(&endSummary, "summary", "", "optional session summary")
}
