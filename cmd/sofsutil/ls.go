package main

import (
	"github.com/spf13/cobra"

	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

var flagLsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls IMAGE [PATH]",
	Short: "List a directory's entries.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer fs.Close()

		path := "/"
		if len(args) > 1 {
			path = args[1]
		}

		p := callerProcess()
		entries, err := fs.Readdir(path, p)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if !flagLsLong {
				log.Printf("%s", e.Name)
				continue
			}
			st, err := fs.Lstat(path+"/"+e.Name, p)
			if err != nil {
				return err
			}
			log.Printf("%s %6d %s", typeChar(st.Mode)+permString(st.Mode), st.Size, e.Name)
		}
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&flagLsLong, "long", "l", false, "show mode and size alongside each name")
}

// typeChar renders the leading type character ls -l prints before the rwx
// triple: 'd' for a directory, 'l' for a symlink, '-' for an ordinary file.
func typeChar(mode uint16) string {
	switch {
	case mode&uint16(sofs.ModeDir) != 0:
		return "d"
	case mode&uint16(sofs.ModeSymlink) != 0:
		return "l"
	default:
		return "-"
	}
}
