// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"forge/grammar"
	"forge/internal/bridge"
	"forge/internal/pprint"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: forge <file.fg>")
		os.Exit(1)
	}

	path := os.Args[1]
	script, err := grammar.ParseFile(path)
	if err != nil {
		os.Exit(1)
	}

	compiled, err := bridge.Compile(script)
	if err != nil {
		color.Red("Lowering failed: %s", err)
		os.Exit(1)
	}

	pprint.PrintBatch(compiled.Batch)
	color.Green("Lowered %s into %d instructions", path, len(compiled.Batch))
}
