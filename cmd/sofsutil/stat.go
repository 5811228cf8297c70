package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tiagoalexbastos/sofs/pkg/sofs/sofsfs"
)

var flagNoFollow bool

var statCmd = &cobra.Command{
	Use:   "stat IMAGE PATH",
	Short: "Print an inode's metadata.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := openImage(args[0])
		if err != nil {
			return err
		}
		defer fs.Close()

		p := callerProcess()

		if flagNoFollow {
			s, err := fs.Lstat(args[1], p)
			if err != nil {
				return err
			}
			printStat(args[1], s)
			return nil
		}
		s, err := fs.Stat(args[1], p)
		if err != nil {
			return err
		}
		printStat(args[1], s)
		return nil
	},
}

func init() {
	statCmd.Flags().BoolVarP(&flagNoFollow, "no-follow", "L", false, "do not follow a trailing symlink")
}

// permString renders the rwx owner/group/other triple of mode the way `ls
// -l` does, without the leading file-type character (ls.go prepends that).
func permString(mode uint16) string {
	bits := "rwxrwxrwx"
	out := []byte(bits)
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) == 0 {
			out[i] = '-'
		}
	}
	return string(out)
}

func printStat(path string, s sofsfs.Stat) {
	log.Printf("%s:", path)
	log.Printf("  inode:    %d", s.Inode)
	log.Printf("  mode:     %s", permString(s.Mode))
	log.Printf("  links:    %d", s.Refcount)
	log.Printf("  uid/gid:  %d/%d", s.Owner, s.Group)
	log.Printf("  size:     %d", s.Size)
	log.Printf("  atime:    %s", time.Unix(int64(s.Atime), 0))
	log.Printf("  mtime:    %s", time.Unix(int64(s.Mtime), 0))
}
