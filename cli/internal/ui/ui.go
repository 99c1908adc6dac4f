package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// Out is where regular output goes.
var Out io.Writer = os.Stdout

func termWidth() int {
	if w := pterm.GetTerminalWidth(); w > 0 && w < 120 {
		return w
	}
	return 80
}

// PrintHeader prints a boxed title
func PrintHeader(title string, subtitle string) {
	header := lipgloss.NewStyle().
		Width(termWidth()).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 2).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Center,
				TitleStyle.Render(title),
				SecondaryStyle.Render(subtitle),
			),
		)
	fmt.Fprintln(Out, header)
}

// PrintSection prints an underlined section title
func PrintSection(title string) {
	section := lipgloss.NewStyle().
		Width(termWidth()).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(SecondaryColor).
		Render(title)
	fmt.Fprintln(Out, section)
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(Out, "  • %s\n", item)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints a secondary message
func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Out, SecondaryStyle.Render(fmt.Sprintf(format, args...)))
}

// PrintTable renders rows under headers.
func PrintTable(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithWriter(Out).WithData(data).Render()
}

// PrintMarkdown renders markdown content
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(Out, out)
	return err
}

var (
	keyword = color.New(color.FgCyan, color.Bold)
	param   = color.New(color.FgYellow)
)

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "ORDER": true,
	"BY": true, "LIMIT": true, "OFFSET": true, "INSERT": true, "INTO": true,
	"VALUES": true, "UPDATE": true, "SET": true, "DELETE": true,
	"AND": true, "OR": true, "XOR": true, "IN": true, "LIKE": true,
	"IS": true, "NOT": true, "NULL": true, "ASC": true, "DESC": true,
}

// PrintSQL prints a statement with its keywords highlighted, followed by
// its parameters as JSON.
func PrintSQL(query string, params []any) error {
	words := strings.Split(query, " ")
	for i, w := range words {
		if sqlKeywords[w] {
			words[i] = keyword.Sprint(w)
		}
	}
	fmt.Fprintln(Out, strings.Join(words, " "))

	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, param.Sprint(string(raw)))
	return nil
}

// Cell formats a value for a table cell.
func Cell(v any) string {
	switch val := v.(type) {
	case nil:
		return SecondaryStyle.Render("NULL")
	case []byte:
		return string(val)
	case string:
		return val
	}
	return fmt.Sprint(v)
}
