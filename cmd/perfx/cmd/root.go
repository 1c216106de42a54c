package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/perfx-labs/perfx/internal/orchestrator"
	"github.com/perfx-labs/perfx/pkg/logging"
	"github.com/perfx-labs/perfx/pkg/platform"
)

// Exit codes, stable for CI pipelines
const (
	ExitOK         = 0
	ExitOther      = 1
	ExitValidation = 2
	ExitPlatform   = 3
	ExitGenerator  = 4
)

var (
	cfgFile     string
	platformURL string
	verbose     bool
	jsonLogs    bool

	log = logging.Default()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "perfx",
	Short: "Bridge Locust load tests to the performance platform",
	Long: `perfx drives a Locust load test as a managed run on the performance
platform: it fetches the run configuration, validates endpoint arguments,
reports the run lifecycle, and streams metrics to InfluxDB.

The Locust script stays unmodified; perfx supervises it as a subprocess.

Exit codes:
  0  run completed (or dry run)
  2  argument validation failed
  3  platform API error
  4  load generator failed
  1  any other error`,
	SilenceErrors: true,
}

// Execute runs the CLI and maps errors to the documented exit codes
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return classify(err)
}

// classify maps an execution error onto the exit-code contract
func classify(err error) int {
	var vf *orchestrator.ValidationFailure
	if errors.As(err, &vf) {
		return ExitValidation
	}
	var gf *orchestrator.GeneratorFailure
	if errors.As(err, &gf) {
		return ExitGenerator
	}
	var nf *platform.NotFoundError
	var rj *platform.RejectionError
	var tr *platform.TransientError
	if errors.As(err, &nf) || errors.As(err, &rj) || errors.As(err, &tr) {
		return ExitPlatform
	}
	return ExitOther
}

func init() {
	cobra.OnInitialize(initConfig)

	// Parameter names from endpoint schemas use underscores; let
	// operators type either form on the command line.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.perfx/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&platformURL, "platform-url", "", "platform API base URL (or PERFX_PLATFORM_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "emit logs as JSON")
}

// initConfig reads the config file and PERFX_* environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".perfx"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.AutomaticEnv()
	viper.BindEnv("platform_url", "PERFX_PLATFORM_URL")
	viper.BindEnv("influxdb_url", "PERFX_INFLUXDB_URL")
	viper.BindEnv("influxdb_token", "PERFX_INFLUXDB_TOKEN")
	viper.BindEnv("influxdb_org", "PERFX_INFLUXDB_ORG")
	viper.BindEnv("influxdb_bucket", "PERFX_INFLUXDB_BUCKET")

	if err := viper.ReadInConfig(); err == nil {
		log.Debug("loaded config file", map[string]interface{}{"path": viper.ConfigFileUsed()})
	}

	if platformURL == "" {
		platformURL = viper.GetString("platform_url")
	}

	level := logging.INFO
	if verbose {
		level = logging.DEBUG
	}
	log = logging.NewLogger(level, jsonLogs)
}
