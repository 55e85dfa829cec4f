package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	definitionsPath string
	logLevel        string
	logFormat       string
)

var rootCmd = &cobra.Command{
	Use:   "samsd",
	Short: "SAMS - Server Alert Monitoring System",
	Long: `samsd monitors servers and service endpoints with pluggable health
checks, evaluates alert rules against reported metrics, and manages the full
alert lifecycle: deduplication, suppression, correlation and escalation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&definitionsPath, "definitions", "", "definitions file (default $DEFINITIONS_PATH or ./definitions.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, console")

	_ = viper.BindPFlag("definitions", rootCmd.PersistentFlags().Lookup("definitions"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initViper() {
	viper.SetEnvPrefix("SAMS")
	viper.AutomaticEnv()
}
