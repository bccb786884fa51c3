package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley is a group chat between you and a set of AI personas",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger once --log-level has been parsed
		initLogger(viper.GetString("log-level"))
	},
}

func initLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".parley")
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("history", filepath.Join(defaultDataDir(), "history.json"), "Conversation history file")
	rootCmd.PersistentFlags().String("personas", "", "Persona configuration YAML (built-in personas when empty)")
	rootCmd.PersistentFlags().String("user-name", "", "Name the personas address you by")

	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.AddConfigPath(defaultDataDir())
	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("path", viper.ConfigFileUsed()).Msg("loaded config file")
	}

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error binding flags: %s\n", err)
		os.Exit(1)
	}

	initLogger(viper.GetString("log-level"))

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newThreadsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
