// Command canteen runs the school canteen ordering core: the HTTP API, admin
// tooling and conformance scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/mrdcvlsc/food-reservation/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
