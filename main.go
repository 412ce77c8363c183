package main

import (
	"fmt"
	"os"

	"github.com/roadwatch/roadwatch-go/cmd"
	"github.com/roadwatch/roadwatch-go/internal/buildinfo"
	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/logging"
)

// version and buildDate are overridden by the build with ldflags.
var version = "dev"
var buildDate = "unknown"

func main() {
	logging.Init()

	buildinfo.SetVersion(version)
	buildinfo.SetBuildDate(buildDate)

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	if settings.Main.Log.Enabled {
		closeLog, err := logging.InitFile(settings.Main.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = closeLog() }()
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
