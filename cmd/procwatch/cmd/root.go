package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	serverAddr   string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "procwatch",
	Short: "Supervised-process watchdog",
	Long: `procwatch keeps long-running worker processes alive: it starts them,
classifies every exit, applies a backoff-governed restart policy with a
bounded failure ceiling, and exposes lifecycle state to operators.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/procwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "status server address (default from config or http://localhost:9120)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in environment variables and locates the config file
func initConfig() {
	viper.SetEnvPrefix("PROCWATCH")
	viper.AutomaticEnv()

	viper.BindEnv("config", "PROCWATCH_CONFIG")
	viper.BindEnv("addr", "PROCWATCH_ADDR")

	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
	if cfgFile == "" {
		for _, candidate := range configSearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}

	if serverAddr == "" {
		serverAddr = viper.GetString("addr")
	}
	if serverAddr == "" {
		serverAddr = "http://localhost:9120"
	}
}

func configSearchPaths() []string {
	paths := []string{"/etc/procwatch/config.yaml", "procwatch.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".procwatch", "config.yaml"))
	}
	return paths
}

// GetServerAddr returns the status server base URL with trailing slashes removed
func GetServerAddr() string {
	addr := serverAddr
	if !strings.Contains(addr, "://") {
		addr = "http://" + strings.TrimPrefix(addr, ":")
		if strings.HasPrefix(serverAddr, ":") {
			addr = "http://localhost" + serverAddr
		}
	}
	return strings.TrimRight(addr, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func requireConfig() (string, error) {
	if cfgFile == "" {
		return "", fmt.Errorf("no config file found (use --config or PROCWATCH_CONFIG)")
	}
	return cfgFile, nil
}
