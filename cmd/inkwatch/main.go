// inkwatch keeps PDF/LaTeX exports of SVG figures in sync with Inkscape.
package main

import (
	"os"

	"github.com/hupe1980/inkwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
