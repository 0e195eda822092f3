package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/inkwatch/internal/config"
)

// Flag names double as config keys; see config.Load.

// registerRendererFlags adds the renderer selection flags to every command.
func registerRendererFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("renderer", "", "path to the inkscape executable (default: inkscape from PATH)")
	pf.String("renderer-args", "", "extra renderer arguments, quoted like a shell command line")
}

// registerTraversalFlags adds the flags that decide which sources exist and
// where their outputs go.
func registerTraversalFlags(cmd *cobra.Command) {
	d := config.Default()

	pf := cmd.PersistentFlags()
	pf.String("aux-prefix", d.AuxPrefix, `prefix for derived file names ("." hides them)`)
	pf.BoolP("recursive", "r", d.Recursive, "include subdirectories")
	pf.IntP("workers", "j", d.Workers, "parallel conversions during regeneration (0 = number of CPUs)")
}

// registerWatchFlags adds the flags that only the watch command honours.
func registerWatchFlags(cmd *cobra.Command) {
	d := config.Default()

	f := cmd.Flags()
	f.Bool("regenerate", d.Regenerate, "convert every source once before watching")
	f.Duration("debounce", d.Debounce, "quiet period per source before a change is converted")
	f.Int("max-watch-errors", d.MaxWatchErrors, "consecutive watch errors tolerated before exiting (0 = unlimited)")
	f.Bool("lock", d.Lock, "refuse to start when another inkwatch watches the same directory")
}
