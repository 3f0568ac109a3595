package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eunoia-health/eunoia/backend/internal/client"
)

var (
	apiURL    string
	userID    int64
	firstName string
	verbose   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Terminal client for the Eunoia wellbeing chat",
	Long: `chatcli talks to the Eunoia chat API.

Run "chatcli chat" to start a conversation with Ana, or "chatcli history" to
list previous sessions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if userID <= 0 {
			return fmt.Errorf("--user must be a positive user id")
		}

		config := zap.NewProductionConfig()
		config.OutputPaths = []string{"stderr"}
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	_ = godotenv.Load()

	defaultURL := strings.TrimSpace(os.Getenv("EUNOIA_API_URL"))
	if defaultURL == "" {
		defaultURL = "http://localhost:8080/api"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "base URL of the chat API")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 0, "user id to chat as")
	rootCmd.PersistentFlags().StringVar(&firstName, "name", "", "first name used in replies")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd, historyCmd, endCmd)
}

func newAPIClient() *client.APIClient {
	return client.NewAPIClient(apiURL, nil)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
