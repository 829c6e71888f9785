// Package repl SPDX-License-Identifier: Apache-2.0
package repl

import (
	"bufio"
	"fmt"
	"io"

	"forge/grammar"
	"forge/internal/bridge"
	"forge/internal/runtime"
)

const PROMPT = ">> "

// Start reads forge statements line by line, executing each as its own
// batch. Named arrays persist across lines.
func Start(in io.Reader, out io.Writer) {
	rt := runtime.NewDefault(runtime.DefaultConfig())
	session := bridge.NewSession()
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, PROMPT)
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		script, err := grammar.ParseSource("repl", line)
		if err != nil {
			fmt.Fprintf(out, "parse error: %s\n", err)
			continue
		}
		compiled, err := session.Compile(script)
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			continue
		}
		if err := rt.Execute(compiled.Batch); err != nil {
			fmt.Fprintf(out, "runtime error: %s\n", err)
			continue
		}
		for _, name := range compiled.Prints {
			fmt.Fprintf(out, "%s = %s\n", name, bridge.FormatView(compiled.Vars[name]))
		}
	}
}
