package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/reconcile"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Warning    lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Warning:    lipgloss.Color("#FFAF00"), // amber
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// blockStyle frames multi-line messages that need the user's attention.
func (t Theme) blockStyle(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

// renderBlocked explains why a conversation cannot be deleted yet.
func renderBlocked(t Theme, conv models.Conversation, count int) string {
	var b strings.Builder
	b.WriteString(t.errorStyle().Render("Cannot delete conversation"))
	fmt.Fprintf(&b, "\n%q still holds %d item(s).\n", conv.Title, count)
	b.WriteString(t.hintStyle().Render(fmt.Sprintf("Remove them first: docchat items list -c %s", conv.ID)))
	return t.blockStyle(t.Error).Render(b.String())
}

// renderNotice reports a background refresh that never succeeded.
func renderNotice(t Theme, n reconcile.Notice) string {
	msg := fmt.Sprintf("Background refresh of %s failed after %d attempts: %v", n.Scope, n.Attempts, n.Err)
	return t.warningStyle().Render(msg)
}

// renderMetrics formats a metrics snapshot for --verbose.
func renderMetrics(s metrics.Snapshot) string {
	if len(s.Operations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(defaultTheme.hintStyle().Render("Backend calls:") + "\n")
	for _, op := range s.Operations {
		fmt.Fprintf(&b, "  %-18s count=%d failures=%d avg=%.1fms max=%dms\n",
			op.Name, op.Count, op.Failures, op.AvgTimeMs, op.MaxTimeMs)
	}
	return b.String()
}

// presentError rewrites errors into what the user should do about them.
func presentError(err error) error {
	var validation *models.ValidationError
	var apiErr *client.APIError
	var netErr *client.NetworkError

	switch {
	case errors.Is(err, client.ErrAuthenticationRequired):
		return fmt.Errorf("not signed in: run 'docchat login'")
	case errors.Is(err, client.ErrAuthenticationExpired):
		return fmt.Errorf("session expired: run 'docchat login'")
	case errors.As(err, &validation):
		return validation
	case errors.As(err, &apiErr):
		if detail, ok := apiErr.ValidationDetail(); ok {
			return fmt.Errorf("rejected by server: %s", detail.Summary())
		}
		return err
	case errors.As(err, &netErr):
		return fmt.Errorf("%w (is the service running?)", err)
	}
	return err
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
