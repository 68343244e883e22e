// Package main provides the agentbus binary entry point.
// Agentbus is a brokerage service that refines natural-language task
// requests into structured specifications through an LM-guided
// dialogue, matches them against a processor catalog, and relays
// requester-processor messages during execution.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/agentbus/llm/providers"

	"github.com/c360studio/agentbus/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "agentbus"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		natsURL    string
	)

	cmd := &cobra.Command{
		Use:   "agentbus",
		Short: "Agent brokerage bus",
		Long: `Agentbus brokers tasks between requesters and autonomous processors.

It provides:
- An LM-guided clarification dialogue that turns vague requests into specs
- Queue-driven matching: discovery, health checks, scoring, workflow synthesis
- A processor catalog with tag and semantic discovery
- A message relay between requesters and assigned processors

State lives in Postgres (tasks, processors, vectors), Redis (dialogue and
status cache), and NATS JetStream (events, messages, blobs).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = strings.ToLower(logLevel)
			}
			if natsURL != "" {
				cfg.NATS.URL = natsURL
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             Agentbus v" + Version + "                    ║")
	fmt.Println("║      Agent Brokerage Service                  ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}
