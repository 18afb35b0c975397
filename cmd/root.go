package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"benchq/internal/banner"
	"benchq/internal/logging"
)

var settingsFile string

var rootCmd = &cobra.Command{
	Use:   "benchq",
	Short: "benchq - matrix load testing with resource sampling",
	Long: `
benchq fires a fixed number of concurrent GET requests at every endpoint of
every environment in a matrix, samples host and process resources while each
batch runs, and reports one result per (environment, endpoint, iteration).

Commands:
  run      execute a matrix described by a YAML file
  dummy    start a local target server to try it against
  results  list results stored by previous runs`,
	SilenceUsage: true,
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd, dummyCmd, resultsCmd)

	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file with flag defaults (default is $HOME/.benchq.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	if settingsFile != "" {
		viper.SetConfigFile(settingsFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".benchq")
		}
	}
	viper.SetEnvPrefix("BENCHQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// newLogger builds the process logger from the log-* settings. quiet sends
// it nowhere unless a log file is set, so a full-screen UI stays intact.
func newLogger(quiet bool) (*logrus.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)

	if path := viper.GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f
	} else if quiet {
		out = io.Discard
	}

	l, err := logging.New(viper.GetString("log-level"), viper.GetString("log-format"), out)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return l, closer, nil
}
