package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

var catCmd = &cobra.Command{
	Use:   "cat IMAGE PATH",
	Short: "Print a regular file's contents to stdout.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer fs.Close()

		p := callerProcess()
		st, err := fs.Stat(args[1], p)
		if err != nil {
			return err
		}
		if st.Mode&uint16(sofs.ModeFile) == 0 {
			return sofs.NewError("cat", sofs.KindIsDirectory)
		}

		buf := make([]byte, st.Size)
		n, err := fs.Read(args[1], p, 0, buf)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(buf[:n])
		return err
	},
}
