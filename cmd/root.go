package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/greenledger/ghgstage/internal/utils"
	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/whttp"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ghgstage",
	Short: "Stage emissions activity data against an emission factor lookup service.",
	Long: `ghgstage walks the emission factor hierarchy (category, subcategory,
activity, selections), resolves factors, stages rows for a project and
commits them once they are complete.

Staged rows are kept in a local SQLite ledger between runs and mirrored to
the lookup service's staged activities.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ghgstage.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to the local ledger (default: ~/.config/ghgstage/ghgstage.sqlite)")
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://127.0.0.1:8089")
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.retries", whttp.DefaultRetries)
	viper.SetDefault("api.timeout", whttp.DefaultTimeout.String())
	viper.SetDefault("api.legacy_sentinel", true)
	viper.SetDefault("session.user_id", "")
	viper.SetDefault("session.project_id", "")
	viper.SetDefault("database", string(ghg.GHGProtocol))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".ghgstage")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ghgstage")
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".ghgstage.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating config file: %s\n", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
