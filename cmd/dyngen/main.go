// Command dyngen generates native dynamics kernels from CUE model classes.
package main

import (
	"os"

	"github.com/roach88/dyngen/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
