// Command autopiper lowers an SSA-form IR program into synchronous
// Verilog.
package main

import (
	"fmt"
	"os"

	"github.com/google/autopiper/internal/lower"
)

func main() {
	c := lower.New()
	if err := c.Configure(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "autopiper: %v\n", err)
		os.Exit(2)
	}
	if err := c.Run(); err != nil {
		os.Exit(1)
	}
}
