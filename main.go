// ./main.go
package main

import (
	"github.com/xkilldash9x/punchclock/cmd"
)

// main is the entry point for the punchclock CLI.
func main() {
	cmd.Execute()
}
