// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"forge/grammar"
	"forge/internal/bridge"
	"forge/internal/runtime"
)

func main() {
	commonlog.Configure(1, nil)

	if len(os.Args) < 2 {
		fmt.Println("Usage: forge-cli <file.fg>")
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

	rt := runtime.NewDefault(runtime.DefaultConfig())
	if err := rt.Execute(compiled.Batch); err != nil {
		color.Red("Execution failed: %s", err)
		os.Exit(1)
	}

	for _, name := range compiled.Prints {
		fmt.Printf("%s = %s\n", name, bridge.FormatView(compiled.Vars[name]))
	}

	color.Green("Executed %s", path)
}
