package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"portmap-ai/pkg/api"
)

var rootCmd = &cobra.Command{
	Use:   "portmapctl",
	Short: "portmapctl - portmap-ai orchestrator admin CLI",
	Long:  `portmapctl inspects registered nodes, queues commands for workers and mints node credentials.`,
}

var (
	orchURL   string
	orchToken string
	caFile    string
	timeout   time.Duration
)

func init() {
	defaultURL := os.Getenv("PORTMAP_ORCHESTRATOR_URL")
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:9100"
	}
	rootCmd.PersistentFlags().StringVar(&orchURL, "url", defaultURL, "orchestrator base URL (env PORTMAP_ORCHESTRATOR_URL)")
	rootCmd.PersistentFlags().StringVar(&orchToken, "token", os.Getenv("PORTMAP_ORCHESTRATOR_TOKEN"), "bearer token (env PORTMAP_ORCHESTRATOR_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&caFile, "ca", "", "CA file for an HTTPS orchestrator")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	rootCmd.AddCommand(nodesCmd, nodeCmd, enqueueCmd, tokenCmd, hashTokenCmd, versionCmd)
}

func newClient() (*api.Client, error) {
	return api.NewClient(orchURL, orchToken, timeout).WithCA(caFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
