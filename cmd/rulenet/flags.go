package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath   string
	TopologyPath string
	LogLevel     string
	LogFormat    string
	Output       string
	Instances    int
	LinkAll      bool
	Serve        bool
	ShowVersion  bool
	ShowHelp     bool
	Validate     bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config", getEnv("RULENET_CONFIG", ""),
		"Path to a JSON configuration file (env: RULENET_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("RULENET_CONFIG", ""),
		"Path to a JSON configuration file (env: RULENET_CONFIG)")
	fs.StringVar(&cfg.TopologyPath, "topology", getEnv("RULENET_TOPOLOGY", ""),
		"Path to the YAML network topology (env: RULENET_TOPOLOGY)")
	fs.StringVar(&cfg.TopologyPath, "t", getEnv("RULENET_TOPOLOGY", ""),
		"Path to the YAML network topology (env: RULENET_TOPOLOGY)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides the config file)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (overrides the config file)")
	fs.StringVar(&cfg.Output, "output", "text", "Layout output: text, yaml, json")
	fs.StringVar(&cfg.Output, "o", "text", "Layout output: text, yaml, json")
	fs.IntVar(&cfg.Instances, "instances", getEnvInt("RULENET_INSTANCES", 0),
		"Engine instances to build, 0 keeps the configured value")
	fs.BoolVar(&cfg.LinkAll, "link-all", false,
		"Link every node after materialising, reporting the resulting path transitions")
	fs.BoolVar(&cfg.Serve, "serve", false,
		"Keep serving metrics after the report until interrupted")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and topology, then exit")

	fs.Usage = func() {
		printDetailedHelp(stderr, fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.TopologyPath == "" {
		return fmt.Errorf("a topology is required (-topology)")
	}
	if _, err := os.Stat(cfg.TopologyPath); err != nil {
		return fmt.Errorf("topology file not found: %s", cfg.TopologyPath)
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if !contains([]string{"text", "yaml", "json"}, cfg.Output) {
		return fmt.Errorf("invalid output format: %s", cfg.Output)
	}
	if cfg.Instances < 0 {
		return fmt.Errorf("invalid instance count: %d", cfg.Instances)
	}
	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - segment and path memory inspector for rule networks

Usage: %s -topology network.yaml [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Print the segment layout of a topology
  %s -topology network.yaml

  # Share prototypes across three instances through NATS
  RULENET_PROTOTYPE_MODE=kv RULENET_NATS_URLS=nats://localhost:4222 \
    %s -topology network.yaml -instances 3

  # Link everything and publish the path transitions
  %s -c rulenet.json -topology network.yaml -link-all -o yaml

Version: %s
`, appName, appName, appName, Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
