package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	def := DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "chainclass",
		Short: "Classify sequences with per-label Markov chains",
		Long: `chainclass trains one first-order Markov chain per label from text and
classifies new text by the label whose chain explains it best. Models are
stored in SQLite and can be served over an HTTP API.`,
		Version:      Version,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "chainclass.yaml", "Configuration file path")
	flags.String("db", def.DatabasePath, "SQLite database path")
	flags.String("tokenizer", def.Tokenizer, "Tokenizer (runes, words)")
	flags.Bool("lowercase", def.Lowercase, "Fold input to lower case before tokenizing")
	flags.String("smoothing", def.Smoothing, "Smoothing denominator (distinct, total)")
	flags.String("log-level", def.LogLevel, "Logging level (debug, info, warn, error)")

	_ = c.v.BindPFlag("database_path", flags.Lookup("db"))
	_ = c.v.BindPFlag("tokenizer", flags.Lookup("tokenizer"))
	_ = c.v.BindPFlag("lowercase", flags.Lookup("lowercase"))
	_ = c.v.BindPFlag("smoothing", flags.Lookup("smoothing"))
	_ = c.v.BindPFlag("log_level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		c.newTrainCmd(),
		c.newClassifyCmd(),
		c.newLabelsCmd(),
		c.newStatsCmd(),
		c.newRemoveCmd(),
		c.newPruneCmd(),
		c.newExportCmd(),
		c.newImportCmd(),
		c.newServeCmd(),
		c.newKeysCmd(),
	)
	return rootCmd
}
