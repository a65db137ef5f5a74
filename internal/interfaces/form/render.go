package form

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Palette.
const (
	ColorSubstitutionBar = "#1f6aa5"
	ColorEliminationBar  = "#a51f1f"
	ColorNeutralBar      = "#6b6b6b"

	ColorSubstitutionText = "#4CC9F0"
	ColorOtherText        = "#F72585"

	colorWarning = "#F4D03F"
	colorError   = "#E74C3C"
	colorMuted   = "#8A8A8A"
)

const (
	TitleForm     = "ChemPredict: Reaction Classifier"
	TitleAnalysis = "Prediction Analysis"
	labelVerdict  = "PREDICTED MECHANISM"
)

// barColor is the fill of a mechanism's probability bar.
func barColor(m reaction.Mechanism) string {
	switch {
	case m.IsSubstitution():
		return ColorSubstitutionBar
	case m.IsElimination():
		return ColorEliminationBar
	default:
		return ColorNeutralBar
	}
}

// bar is one row of the probability chart.
type bar struct {
	mechanism reaction.Mechanism
	model     progress.Model
}

// newBars builds one bar per mechanism in catalog order.
func newBars(width int) []bar {
	all := reaction.Mechanisms()
	out := make([]bar, 0, len(all))
	for _, m := range all {
		out = append(out, bar{
			mechanism: m,
			model: progress.New(
				progress.WithSolidFill(barColor(m)),
				progress.WithWidth(width),
				progress.WithoutPercentage(),
			),
		})
	}
	return out
}

type styles struct {
	title        lipgloss.Style
	label        lipgloss.Style
	substitution lipgloss.Style
	other        lipgloss.Style
	muted        lipgloss.Style
	panel        lipgloss.Style
	warnBox      lipgloss.Style
	errBox       lipgloss.Style
	boxTitle     lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:        lipgloss.NewStyle().Bold(true).MarginBottom(1),
		label:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorMuted)),
		substitution: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorSubstitutionText)),
		other:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorOtherText)),
		muted:        lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		panel:        lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2),
		warnBox: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorWarning)).Padding(0, 1),
		errBox: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorError)).Padding(0, 1),
		boxTitle: lipgloss.NewStyle().Bold(true),
	}
}

func (s *Session) renderResult(res *prediction.Result) string {
	verdict := s.styles.other
	if res.Mechanism.IsSubstitution() {
		verdict = s.styles.substitution
	}

	nameWidth := 0
	for _, b := range s.bars {
		nameWidth = max(nameWidth, len(b.mechanism))
	}
	rows := make([]string, 0, len(s.bars))
	for _, b := range s.bars {
		p := res.Probabilities[b.mechanism]
		rows = append(rows, fmt.Sprintf("%-*s  %s %6.1f%%", nameWidth, b.mechanism, b.model.ViewAs(p), p*100))
	}

	meta := fmt.Sprintf("backend %s · model %s", res.Backend, res.ModelVersion)
	if res.Rule != "" {
		meta += " · rule " + string(res.Rule)
	}
	if res.CacheHit {
		meta += " · cached"
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		s.styles.title.Render(TitleAnalysis),
		s.styles.label.Render(labelVerdict),
		verdict.Render(string(res.Mechanism)),
		"",
		strings.Join(rows, "\n"),
		"",
		s.styles.muted.Render(meta),
	)
	return s.styles.panel.Render(body)
}

// RenderError formats err as a message box.  Input problems render as
// warnings, everything else as errors.
func (s *Session) RenderError(err error) string {
	title, msg, box := "Prediction Failed", err.Error(), s.styles.errBox

	if ae, ok := errors.AsAppError(err); ok {
		msg = ae.Message
		switch ae.Code {
		case errors.ErrCodeArtifactMissing:
			title = mechanism.MissingTitle(err)
			msg = mechanism.ModelNotFoundMessage
			if title == mechanism.EncodersNotFoundTitle {
				msg = mechanism.EncodersNotFoundMsg
			}
		case errors.ErrCodeInvalidInput:
			title, box = "Invalid Input", s.styles.warnBox
		case errors.ErrCodeUnknownCategory:
			title, box = "Unknown Value", s.styles.warnBox
			if len(ae.Accepted) > 0 {
				msg += "\nAccepted: " + strings.Join(ae.Accepted, ", ")
			}
		}
	}
	return box.Render(s.styles.boxTitle.Render(title) + "\n" + msg)
}
