// Package console is an interactive line editor that dispatches tool calls
// typed as `tool_name {json arguments}`.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/knz/bubbline"
	"github.com/knz/bubbline/editline"

	"github.com/litesql/dbmcp/internal/tools"
)

var (
	nameStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
)

const help = `Type a tool name followed by its JSON arguments, e.g.
  fetch_data {"table": "users", "limit": 10}
Arguments may span several lines until the braces are balanced.
  .tools   list the tools
  .help    show this help
  .exit    quit`

type command int

const (
	cmdNone command = iota
	cmdInvoke
	cmdTools
	cmdHelp
	cmdExit
)

func parseLine(line string) (command, tools.Invocation, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return cmdNone, tools.Invocation{}, nil
	case ".tools":
		return cmdTools, tools.Invocation{}, nil
	case ".help":
		return cmdHelp, tools.Invocation{}, nil
	case ".exit", ".quit":
		return cmdExit, tools.Invocation{}, nil
	}
	if strings.HasPrefix(line, ".") {
		return cmdNone, tools.Invocation{}, fmt.Errorf("unknown command %q (try .help)", line)
	}
	name, args, _ := strings.Cut(line, " ")
	if i := strings.IndexAny(name, "\t\n{"); i >= 0 {
		name, args = line[:i], line[i:]
	}
	inv := tools.Invocation{Tool: name}
	if args = strings.TrimSpace(args); args != "" {
		if !json.Valid([]byte(args)) {
			return cmdNone, tools.Invocation{}, errors.New("arguments are not valid JSON")
		}
		inv.Args = json.RawMessage(args)
	}
	return cmdInvoke, inv, nil
}

// balanced reports whether every brace and bracket outside string literals
// has been closed.
func balanced(input string) bool {
	depth := 0
	inString, escaped := false, false
	for _, r := range input {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{' || r == '[':
			depth++
		case r == '}' || r == ']':
			depth--
		}
	}
	return depth <= 0 && !inString
}

type Console struct {
	d   *tools.Dispatcher
	out io.Writer
}

func New(d *tools.Dispatcher, out io.Writer) *Console {
	return &Console{d: d, out: out}
}

// Run reads lines from the terminal until .exit, end of input or ctx is
// done.
func (c *Console) Run(ctx context.Context) error {
	m := bubbline.New()
	defer m.Close()
	m.Prompt = "dbmcp> "
	m.NextPrompt = "    -> "
	m.CheckInputComplete = func(input [][]rune, line, col int) bool {
		var sb strings.Builder
		for _, l := range input {
			sb.WriteString(string(l))
			sb.WriteByte('\n')
		}
		return balanced(sb.String())
	}

	fmt.Fprintln(c.out, mutedStyle.Render("type .help for usage"))
	for ctx.Err() == nil {
		line, err := m.GetLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, editline.ErrInterrupted) {
				continue
			}
			return err
		}
		if strings.TrimSpace(line) != "" {
			m.AddHistory(line)
		}
		if c.Exec(ctx, line) {
			return nil
		}
	}
	return ctx.Err()
}

// Exec runs one input line and reports whether the console should quit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	cmd, inv, err := parseLine(line)
	if err != nil {
		fmt.Fprintln(c.out, errStyle.Render(err.Error()))
		return false
	}
	switch cmd {
	case cmdExit:
		return true
	case cmdHelp:
		fmt.Fprintln(c.out, help)
	case cmdTools:
		for _, t := range c.d.Registry().List() {
			fmt.Fprintf(c.out, "%s  %s\n", nameStyle.Render(string(t.Name)), mutedStyle.Render(t.Description))
		}
	case cmdInvoke:
		c.print(c.d.Dispatch(ctx, inv))
	}
	return false
}

func (c *Console) print(res tools.Result) {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintln(c.out, errStyle.Render(err.Error()))
		return
	}
	if res.Failed() {
		fmt.Fprintln(c.out, errStyle.Render(string(b)))
		return
	}
	fmt.Fprintln(c.out, okStyle.Render(string(b)))
}
