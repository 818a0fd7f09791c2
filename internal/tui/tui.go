package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/session"
)

func Run(ctx context.Context, gate *session.Gate, services ServiceFunc, logger *log.Logger) error {
	applyColorProfilePreference()
	applyGlyphPreference()
	m := newAppModel(ctx, gate, services, logger)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
