package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tiagoalexbastos/sofs/pkg/elog"
	"github.com/tiagoalexbastos/sofs/pkg/mkfs"
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool

	flagName     string
	flagInodes   uint32
	flagClusters uint32
	flagZeroFill bool
)

var rootCmd = &cobra.Command{
	Use:   "mkfs-sofs IMAGE",
	Short: "Format a SOFS volume.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := mkfs.Options{
			Name:      flagName,
			NInodes:   flagInodes,
			NClusters: flagClusters,
			ZeroFill:  flagZeroFill,
		}
		if err := mkfs.Format(args[0], opts); err != nil {
			return err
		}
		log.Printf("formatted %s: %d inodes, %d data clusters", args[0], flagInodes, flagClusters)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagName, "name", "sofs", "volume name")
	rootCmd.Flags().Uint32Var(&flagInodes, "inodes", 1024, "number of inodes to provision")
	rootCmd.Flags().Uint32Var(&flagClusters, "clusters", 8192, "number of data clusters to provision")
	rootCmd.Flags().BoolVar(&flagZeroFill, "zero", false, "materialize the whole device with zero bytes instead of a sparse file")

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &elog.CLI{}
		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}
		logrus.SetLevel(logrus.TraceLevel)
		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}
		log = logger
		return nil
	}
}
