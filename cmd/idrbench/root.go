package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "idrbench",
	Short: "benchmark and inspect an idr.Idr",
	Long: `idrbench (v` + version + `)

A benchmark and diagnostics tool for idr.Idr, a concurrent identifier
resolver. Configuration can be set via command line flags or environment
variables; the format of the environment variables is IDR_<flag>
(e.g. IDR_THREADS=16).`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(benchCmd)

	key := "log-level"
	rootCmd.PersistentFlags().String(key, "warn", wrapHelp("level to log internal idr diagnostics at (debug, info, warn, error)"))
}

func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("idr")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// wrapHelp wraps flag help text at a fixed column width, matching the
// teacher's own cmd/util.WrapString.
func wrapHelp(text string) string {
	const wrap = 60
	var lines []string
	var line strings.Builder
	width := 0

	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
