package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	locationStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// chromeRows is the header plus the footer.
const chromeRows = 2

// defaultWidth applies until the first WindowSizeMsg.
const defaultWidth = 100

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	failures := m.failures()
	if len(failures) == 0 {
		b.WriteString(dimStyle.Render("No failures recorded."))
		b.WriteByte('\n')
	} else {
		end := len(failures)
		if rows := m.listRows(); rows > 0 && m.offset+rows < end {
			end = m.offset + rows
		}
		for i := m.offset; i < end; i++ {
			b.WriteString(m.renderRow(i))
			b.WriteByte('\n')
		}
	}

	b.WriteString(dimStyle.Render(m.keys.helpLine()))
	return b.String()
}

func (m Model) renderHeader() string {
	if m.run == nil {
		return headerStyle.Render(" failloc ")
	}
	age := humanize.RelTime(m.run.FinishedAt, m.now(), "ago", "from now")
	text := fmt.Sprintf(" failloc  %s  %s  %s ",
		m.run.Source,
		pluralize(m.run.FailureCount, "failure"),
		age,
	)
	return headerStyle.Render(truncateStr(text, m.viewWidth()))
}

func (m Model) renderRow(i int) string {
	f := m.failures()[i]
	width := m.viewWidth()

	marker := "  "
	if i == m.cursor {
		marker = "> "
	}
	location := truncateStr(f.Location, width-len(marker))
	row := marker + location

	rest := width - utf8.RuneCountInString(row) - 2
	message := firstLine(f.Message)
	if rest > 0 && message != "" {
		message = truncateStr(message, rest)
	} else {
		message = ""
	}

	if i == m.cursor {
		return selectedStyle.Render(row) + "  " + messageStyle.Render(message)
	}
	return locationStyle.Render(row) + "  " + messageStyle.Render(message)
}

// listRows is the number of failures that fit on screen, or 0 when the
// terminal height is not known yet.
func (m Model) listRows() int {
	if m.height == 0 {
		return 0
	}
	rows := m.height - chromeRows
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m Model) viewWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

// firstLine returns the first non-blank line of a sanitized message, where
// newlines are the two characters `\n`.
func firstLine(msg string) string {
	for _, line := range strings.Split(msg, `\n`) {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// truncateStr truncates a string to maxLen runes.
func truncateStr(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "…"
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
