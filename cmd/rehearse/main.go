// Package main is the rehearse command line client for the interview
// practice backend.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagBackend  string
	flagStateDir string
	flagStore    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "rehearse",
	Short:         "Practice interviews against the rehearse backend",
	Long:          "rehearse loads interview questions, records or submits an answer video, shows the AI report, chats about it and lists past interviews.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Backend base URL (overrides REHEARSE_BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "Directory for the file state store (overrides REHEARSE_STATE_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "State store: file, redis or postgres (overrides REHEARSE_STORE)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
