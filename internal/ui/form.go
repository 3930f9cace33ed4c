package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/theme"
)

// FormWidth clamps a terminal width to a comfortable form width.
func FormWidth(width int) int {
	w := width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// FormHeight clamps a terminal height to a usable form height.
func FormHeight(height int) int {
	h := height - 4
	if h < 10 {
		h = 10
	}
	return h
}

// RenderForm draws a titled form body with the standard padding.
func RenderForm(title, body string) string {
	titleStyle := theme.TitleStyle.MarginBottom(1)
	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(titleStyle.Render(title) + "\n" + body)
}

// ValidateDateFormat accepts an empty string or a YYYY-MM-DD date.
// Whether the date is acceptable is left to the stores.
func ValidateDateFormat(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(model.DateLayout, s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}
