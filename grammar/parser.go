package grammar

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
)

func buildParser() (*participle.Parser[Script], error) {
	return participle.Build[Script](
		participle.Lexer(ScriptLexer),
		participle.Elide("Whitespace"),
		// Lookahead disambiguates calls, indexing, and bare identifiers.
		participle.UseLookahead(3),
	)
}

// ParseSource parses a forge script.
func ParseSource(path, source string) (*Script, error) {
	parser, err := buildParser()
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return parser.ParseString(path, source)
}

// ParseFile parses a forge script from disk.
func ParseFile(path string) (*Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	script, err := ParseSource(path, string(source))
	if err != nil {
		ReportParseError(string(source), err)
		return nil, err
	}
	return script, nil
}

// ReportParseError prints a friendly caret-style parse error message.
func ReportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
