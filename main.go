// FlowSketch - AI-assisted system architecture diagram engine.
//
// FlowSketch turns natural-language system descriptions into editable
// architecture diagrams, renders PNG snapshots, and syncs designs with a
// remote design store.
package main

import (
	"fmt"
	"os"

	"github.com/flowsketch/flowsketch-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
