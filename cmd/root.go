package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roadwatch/roadwatch-go/cmd/analyze"
	"github.com/roadwatch/roadwatch-go/cmd/server"
	"github.com/roadwatch/roadwatch-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roadwatch",
		Short: "RoadWatch road surface defect registry",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		server.Command(settings),
		analyze.Command(settings),
	)

	return rootCmd
}

// setupFlags defines global flags and binds them to viper.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "db", settings.Output.SQLite.Path, "Path to the SQLite registry database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
