package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/parley/pkg/chat"
)

func newThreadsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List stored conversation threads",
		Run: func(cmd *cobra.Command, args []string) {
			store := chat.LoadStore(viper.GetString("history"))
			printThreads(store)
		},
	}
}
