// Command sofsutil inspects an existing SOFS volume image without mounting
// it: stat, ls, and cat subcommands each open the image, resolve a path,
// and print what they find. The image is opened read-write: closing it
// rewrites the superblock, and ls and cat update access times. Grounded on cmd/vorteil/imageutil's
// command layout (direktiv-vorteil) — one exported cobra.Command per
// subcommand, a shared package-level logger configured in
// rootCmd.PersistentPreRunE.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tiagoalexbastos/sofs/pkg/elog"
	"github.com/tiagoalexbastos/sofs/pkg/sofs"
	"github.com/tiagoalexbastos/sofs/pkg/sofs/sofsfs"
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "sofsutil",
	Short: "Inspect a SOFS volume image.",
}

func init() {
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)

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

// callerProcess is the identity sofsutil presents for every permission
// check: the identity of the host process inspecting the image.
func callerProcess() sofs.Process {
	return sofs.Process{UID: uint32(os.Getuid()), GID: uint32(os.Getgid())}
}

func openImage(path string) (*sofsfs.FS, error) {
	return sofsfs.Open(path)
}
