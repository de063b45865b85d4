package verflag

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"pzemgateway/pkg/version"
)

var versionFlag *bool

// AddFlags registers the --version flag on the given flag set.
func AddFlags(fs *pflag.FlagSet) {
	versionFlag = fs.Bool("version", false, "Print version information and quit")
}

// PrintAndExitIfRequested checks whether --version was passed and, if so,
// prints the version and exits.
func PrintAndExitIfRequested() {
	if versionFlag != nil && *versionFlag {
		fmt.Printf("%s %s\n", os.Args[0], version.Get())
		os.Exit(0)
	}
}
