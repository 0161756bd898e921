package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pointgrid/pointgrid/pkg/elog"
)

var log = &elog.CLI{}

var (
	flagVerbose bool
	flagDebug   bool
	flagNoTTY   bool
	flagWorkers int
)

// RootCommand assembles the pointgrid command tree.
func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pointgrid",
		Short: "Build and query disk-resident point-cloud octrees",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.IsVerbose = viper.GetBool("verbose") || flagVerbose
			log.IsDebug = viper.GetBool("debug") || flagDebug
			log.DisableTTY = flagNoTTY
			logrus.SetFormatter(&logrus.TextFormatter{
				DisableTimestamp: true,
			})
			if log.IsDebug {
				logrus.SetLevel(logrus.TraceLevel)
			} else if log.IsVerbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	flags.BoolVar(&flagNoTTY, "no-tty", false, "disable progress bars")
	flags.IntVarP(&flagWorkers, "workers", "j", 0, "number of parallel workers (0 = all cores)")

	viper.SetEnvPrefix("pointgrid")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("workers", flags.Lookup("workers"))

	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(xrayCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(queryCmd())
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

func numWorkers() int {
	if w := viper.GetInt("workers"); w > 0 {
		return w
	}
	return flagWorkers
}
