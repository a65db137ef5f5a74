// Package form is the interactive terminal front end: a huh form that
// collects one reaction and a lipgloss panel that shows the verdict.
package form

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Predictor is the part of prediction.Service the form uses.
type Predictor interface {
	Predict(ctx context.Context, in mechanism.Input) (*prediction.Result, error)
}

// Values holds the raw form fields.  Temperature is kept as typed.
type Values struct {
	SubstrateDegree string
	LeavingGroup    string
	Nucleophile     string
	SolventType     string
	StericHindrance string
	Temperature     string
}

// DefaultValues preselects the first catalog entry of every list and room
// temperature.
func DefaultValues() Values {
	return Values{
		SubstrateDegree: string(reaction.SubstrateDegrees()[0]),
		LeavingGroup:    string(reaction.LeavingGroups()[0]),
		Nucleophile:     string(reaction.Nucleophiles()[0]),
		SolventType:     string(reaction.SolventTypes()[0]),
		StericHindrance: string(reaction.Hindrances()[0]),
		Temperature:     "25",
	}
}

// Session runs the form loop against one predictor.
type Session struct {
	svc        Predictor
	theme      *huh.Theme
	out        io.Writer
	logger     logging.Logger
	bars       []bar
	styles     styles
	accessible bool
}

type Option func(*Session)

// WithTheme injects the theme resolved by ApplyAppearance.
func WithTheme(t *huh.Theme) Option { return func(s *Session) { s.theme = t } }

func WithOutput(w io.Writer) Option { return func(s *Session) { s.out = w } }

func WithLogger(l logging.Logger) Option { return func(s *Session) { s.logger = l } }

// WithAccessible switches huh to its line-based prompt mode.
func WithAccessible(on bool) Option { return func(s *Session) { s.accessible = on } }

// WithBarWidth sets the probability bar width in cells.
func WithBarWidth(w int) Option { return func(s *Session) { s.bars = newBars(w) } }

const defaultBarWidth = 30

// NewSession returns a session over svc.
func NewSession(svc Predictor, opts ...Option) *Session {
	s := &Session{
		svc:    svc,
		theme:  huh.ThemeCharm(),
		out:    os.Stdout,
		logger: logging.NewNopLogger(),
		bars:   newBars(defaultBarWidth),
		styles: newStyles(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input converts v into a prediction input.  The temperature must be a
// number inside the accepted range.
func (v Values) Input() (mechanism.Input, error) {
	t, err := reaction.ParseTemperature(v.Temperature)
	if err != nil {
		return mechanism.Input{}, err
	}
	return mechanism.Input{
		SubstrateDegree: v.SubstrateDegree,
		LeavingGroup:    v.LeavingGroup,
		Nucleophile:     v.Nucleophile,
		SolventType:     v.SolventType,
		StericHindrance: v.StericHindrance,
		Temperature:     &t,
	}, nil
}

// Submit predicts v and returns the rendered result panel.
func (s *Session) Submit(ctx context.Context, v Values) (string, error) {
	in, err := v.Input()
	if err != nil {
		return "", err
	}
	res, err := s.svc.Predict(ctx, in)
	if err != nil {
		return "", err
	}
	return s.renderResult(res), nil
}

// Run shows the form until the user declines another prediction or aborts.
// Prediction errors are shown and the loop continues.
func (s *Session) Run(ctx context.Context) error {
	v := DefaultValues()
	for {
		if err := s.buildForm(&v).RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}

		panel, err := s.Submit(ctx, v)
		if err != nil {
			s.logger.Debug("form prediction failed", logging.Err(err))
			panel = s.RenderError(err)
		}
		fmt.Fprintln(s.out, panel)

		again := true
		confirm := huh.NewConfirm().Title("Predict another reaction?").Value(&again)
		if err := huh.NewForm(huh.NewGroup(confirm)).
			WithTheme(s.theme).
			WithAccessible(s.accessible).
			RunWithContext(ctx); err != nil || !again {
			return nil
		}
	}
}

func (s *Session) buildForm(v *Values) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title(TitleForm),
			selectField("Substrate Degree", reaction.SubstrateDegrees(), &v.SubstrateDegree),
			selectField("Leaving Group", reaction.LeavingGroups(), &v.LeavingGroup),
			selectField("Nucleophile", reaction.Nucleophiles(), &v.Nucleophile),
			selectField("Solvent Type", reaction.SolventTypes(), &v.SolventType),
			selectField("Steric Hindrance", reaction.Hindrances(), &v.StericHindrance),
			huh.NewInput().
				Title("Temperature (°C)").
				Value(&v.Temperature).
				Validate(validateTemperature),
		),
	).WithTheme(s.theme).WithAccessible(s.accessible)
}

func selectField[T ~string](title string, values []T, dst *string) *huh.Select[string] {
	opts := make([]huh.Option[string], len(values))
	for i, val := range values {
		opts[i] = huh.NewOption(string(val), string(val))
	}
	return huh.NewSelect[string]().Title(title).Options(opts...).Value(dst)
}

// validateTemperature rejects non-numeric text inline.  The range is
// checked on submit so it renders as a warning box.
func validateTemperature(s string) error {
	t, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return errors.InvalidInput("Temperature must be a number").WithField(reaction.ColTemperature)
	}
	return nil
}
