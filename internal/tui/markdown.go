package tui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	mdRendererMu sync.Mutex
	// Cache renderers by wrap width + style. glamour.WithAutoStyle can block on terminal
	// background queries, so the style is chosen from the theme instead.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func markdownStyle() string {
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	style := markdownStyle()
	key := style + ":" + strconv.Itoa(width)

	mdRendererMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdRendererMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdRendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

const helpMarkdown = `# Task board

## Tasks

| Key | Action |
|-----|--------|
| ↑/↓, j/k | move selection |
| a | add a task |
| e | edit the selected task |
| space | toggle completed |
| d | delete (asks first) |
| r | reload from the server |

## Form

| Key | Action |
|-----|--------|
| tab / shift+tab | next / previous field |
| ←/→ | change priority |
| enter | save |
| esc | cancel |

## Other

| Key | Action |
|-----|--------|
| t | switch light/dark theme |
| L | sign out |
| ? | this help |
| q, ctrl+c | quit |
`
