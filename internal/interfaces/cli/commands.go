package cli

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/ChemPredict/internal/application/dataset"
	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/application/training"
	"github.com/turtacn/ChemPredict/internal/bootstrap"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/internal/interfaces/form"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// withInfra opens the configured backends for the duration of fn.
func withInfra(cmd *cobra.Command, fn func(cliCtx *CLIContext, infra *bootstrap.Infrastructure) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	infra, err := bootstrap.Open(cmd.Context(), cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer infra.Close()
	return fn(cliCtx, infra)
}

// ─────────────────────────────────────────────────────────────────────────────
// generate / train
// ─────────────────────────────────────────────────────────────────────────────

type generateResult struct{ *training.GenerateReport }

func (r generateResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Wrote %d rows to %s\n", r.Rows, r.Path)
	writeClassCounts(&sb, r.ClassCounts)
	return strings.TrimRight(sb.String(), "\n")
}

func (r generateResult) TableHeaders() []string { return []string{"MECHANISM", "ROWS", "SHARE"} }
func (r generateResult) TableRows() [][]string  { return classCountRows(r.ClassCounts, r.Rows) }

func writeClassCounts(sb *strings.Builder, counts []dataset.ClassCount) {
	for _, c := range counts {
		fmt.Fprintf(sb, "  %-12s %d\n", c.Mechanism, c.Count)
	}
}

func classCountRows(counts []dataset.ClassCount, total int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		share := 0.0
		if total > 0 {
			share = float64(c.Count) / float64(total) * 100
		}
		rows = append(rows, []string{string(c.Mechanism), strconv.Itoa(c.Count), fmt.Sprintf("%.1f%%", share)})
	}
	return rows
}

func newGenerateCmd() *cobra.Command {
	var (
		rows int
		out  string
		seed uint64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize a labelled reaction dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(cmd, func(cliCtx *CLIContext, infra *bootstrap.Infrastructure) error {
				if rows == 0 {
					rows = cliCtx.Config.Data.Rows
				}
				if out == "" {
					out = cliCtx.Config.Data.Path()
				}
				if cmd.Flags().Changed("seed") {
					cliCtx.Config.Data.Seed = seed
				}
				report, err := infra.TrainingService().Generate(cmd.Context(), rows, out)
				if err != nil {
					return err
				}
				return PrintResult(cmd, generateResult{report})
			})
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "number of rows (default: data.rows)")
	cmd.Flags().StringVar(&out, "out", "", "output CSV path (default: data.dir/data.file)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for a reproducible dataset")
	return cmd
}

type trainResult struct{ *mechanism.TrainingReport }

func (r trainResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model %s (version %s)\n", r.ModelID, r.Version)
	fmt.Fprintf(&sb, "Trained on %d rows, tested on %d\n", r.TrainRows, r.TestRows)
	fmt.Fprintf(&sb, "Model Accuracy: %.2f%%\n", r.Accuracy*100)
	writeClassCounts(&sb, r.ClassCounts)
	return strings.TrimRight(sb.String(), "\n")
}

func (r trainResult) TableHeaders() []string { return []string{"FEATURE", "IMPORTANCE"} }

func (r trainResult) TableRows() [][]string {
	names := make([]string, 0, len(r.FeatureImportances))
	for n := range r.FeatureImportances {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.FeatureImportances[names[i]], r.FeatureImportances[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n, fmt.Sprintf("%.4f", r.FeatureImportances[n])}
	}
	return rows
}

func newTrainCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the random forest on a dataset and save the model artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(cmd, func(cliCtx *CLIContext, infra *bootstrap.Infrastructure) error {
				if data == "" {
					data = cliCtx.Config.Data.Path()
				}
				report, err := infra.TrainingService().Train(cmd.Context(), data)
				if err != nil {
					return err
				}
				return PrintResult(cmd, trainResult{report})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "dataset CSV path (default: data.dir/data.file)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// predict / rules
// ─────────────────────────────────────────────────────────────────────────────

// reactionFlags are the six inputs shared by predict and rules.
type reactionFlags struct {
	substrate, leaving, nucleophile, solvent, hindrance, temperature string
}

func (f *reactionFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.substrate, "substrate", "", "substrate degree (Methyl, Primary, Secondary, Tertiary)")
	fl.StringVar(&f.leaving, "leaving-group", "", "leaving group (e.g. Br-, I-, OTs-)")
	fl.StringVar(&f.nucleophile, "nucleophile", "", "nucleophile or base (e.g. OH-, H2O, t-BuO-)")
	fl.StringVar(&f.solvent, "solvent", "", "solvent type (Polar Protic, Polar Aprotic)")
	fl.StringVar(&f.hindrance, "hindrance", "", "steric hindrance (Low, High)")
	fl.StringVar(&f.temperature, "temperature", "", "temperature in °C, 0 to 100")
}

// input builds a prediction input.  An empty temperature is reported as a
// missing field by the predictor.
func (f *reactionFlags) input() (mechanism.Input, error) {
	in := mechanism.Input{
		SubstrateDegree: f.substrate,
		LeavingGroup:    f.leaving,
		Nucleophile:     f.nucleophile,
		SolventType:     f.solvent,
		StericHindrance: f.hindrance,
	}
	if strings.TrimSpace(f.temperature) != "" {
		t, err := reaction.ParseTemperature(f.temperature)
		if err != nil {
			return mechanism.Input{}, err
		}
		in.Temperature = &t
	}
	return in, nil
}

type predictResult struct{ *prediction.Result }

func (r predictResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Predicted mechanism: %s\n", r.Mechanism)
	writeProbabilities(&sb, r.Probabilities)
	fmt.Fprintf(&sb, "backend %s, model %s", r.Backend, r.ModelVersion)
	if r.Rule != "" {
		fmt.Fprintf(&sb, ", rule %s", r.Rule)
	}
	return sb.String()
}

func (r predictResult) TableHeaders() []string { return []string{"MECHANISM", "PROBABILITY"} }
func (r predictResult) TableRows() [][]string  { return probabilityRows(r.Probabilities) }

func writeProbabilities(sb *strings.Builder, probs map[reaction.Mechanism]float64) {
	for _, m := range reaction.Mechanisms() {
		fmt.Fprintf(sb, "  %-12s %6.1f%%\n", m, probs[m]*100)
	}
}

func probabilityRows(probs map[reaction.Mechanism]float64) [][]string {
	all := reaction.Mechanisms()
	rows := make([][]string, len(all))
	for i, m := range all {
		rows[i] = []string{string(m), fmt.Sprintf("%.4f", probs[m])}
	}
	return rows
}

func newPredictCmd() *cobra.Command {
	var (
		f       reactionFlags
		backend string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the mechanism of one reaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := f.input()
			if err != nil {
				return err
			}
			return withInfra(cmd, func(cliCtx *CLIContext, infra *bootstrap.Infrastructure) error {
				svc := infra.PredictionService()
				if backend != "" && backend != svc.Backend() {
					if backend != mechanism.BackendRules && backend != mechanism.BackendForest {
						return errors.UnknownCategory("backend", backend,
							[]string{mechanism.BackendForest, mechanism.BackendRules})
					}
					cliCtx.Config.Model.Backend = backend
					svc = infra.PredictionService()
				}
				res, err := svc.Predict(cmd.Context(), in)
				if err != nil {
					return err
				}
				return PrintResult(cmd, predictResult{res})
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&backend, "backend", "", "predictor backend (forest, rules); overrides model.backend")
	return cmd
}

type rulesResult struct {
	Descriptor    reaction.Descriptor            `json:"descriptor"`
	Mechanism     reaction.Mechanism             `json:"mechanism"`
	Rule          reaction.RuleID                `json:"rule"`
	Rationale     string                         `json:"rationale"`
	Probabilities map[reaction.Mechanism]float64 `json:"probabilities"`
}

func (r rulesResult) String() string {
	return fmt.Sprintf("%s: %s\n  rule %s: %s", r.Descriptor, r.Mechanism, r.Rule, r.Rationale)
}

func (r rulesResult) TableHeaders() []string { return []string{"MECHANISM", "PROBABILITY"} }
func (r rulesResult) TableRows() [][]string  { return probabilityRows(r.Probabilities) }

func newRulesCmd() *cobra.Command {
	var f reactionFlags
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Evaluate the mechanism rules for one reaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := f.input()
			if err != nil {
				return err
			}
			d, err := in.Descriptor()
			if err != nil {
				return err
			}
			dec := reaction.Evaluate(d)
			return PrintResult(cmd, rulesResult{
				Descriptor:    d,
				Mechanism:     dec.Mechanism,
				Rule:          dec.Rule,
				Rationale:     dec.Rationale,
				Probabilities: dec.Probabilities(),
			})
		},
	}
	f.register(cmd)
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// form / serve
// ─────────────────────────────────────────────────────────────────────────────

func newFormCmd() *cobra.Command {
	var accessible bool
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Open the interactive reaction form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(cmd, func(cliCtx *CLIContext, infra *bootstrap.Infrastructure) error {
				theme := form.ApplyAppearance(cliCtx.Config.Form.Appearance, cliCtx.Config.Form.Theme)
				svc := infra.PredictionService()
				if svc.Backend() == mechanism.BackendForest {
					if err := svc.ReloadModel(cmd.Context()); err != nil && !errors.IsArtifactMissing(err) {
						return err
					}
				}
				return form.NewSession(svc,
					form.WithTheme(theme),
					form.WithOutput(cmd.OutOrStdout()),
					form.WithLogger(cliCtx.Logger),
					form.WithAccessible(accessible),
				).Run(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVar(&accessible, "accessible", false, "use line-based prompts instead of the full-screen form")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withInfra(cmd, func(cliCtx *CLIContext, infra *bootstrap.Infrastructure) error {
				if port > 0 {
					cliCtx.Config.Server.Port = port
				}
				return infra.Serve(ctx, Version)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default: server.port)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// catalog / version
// ─────────────────────────────────────────────────────────────────────────────

type catalogResult struct{ reaction.Catalog }

func (c catalogResult) TableHeaders() []string { return []string{"FIELD", "VALUES"} }

func (c catalogResult) TableRows() [][]string {
	lgs := make([]string, len(c.LeavingGroups))
	for i, lg := range c.LeavingGroups {
		lgs[i] = fmt.Sprintf("%s (%s)", lg.Name, lg.Quality)
	}
	nus := make([]string, len(c.Nucleophiles))
	for i, n := range c.Nucleophiles {
		nus[i] = fmt.Sprintf("%s (%s)", n.Name, n.Strength)
	}
	return [][]string{
		{reaction.ColSubstrateDegree, joinNames(c.SubstrateDegrees)},
		{reaction.ColLeavingGroup, strings.Join(lgs, ", ")},
		{reaction.ColNucleophile, strings.Join(nus, ", ")},
		{reaction.ColSolventType, joinNames(c.SolventTypes)},
		{reaction.ColStericHindrance, joinNames(c.Hindrances)},
		{reaction.ColTemperature, fmt.Sprintf("%.0f to %.0f °C", c.Temperature.Min, c.Temperature.Max)},
		{"Mechanism", joinNames(c.Mechanisms)},
	}
}

func (c catalogResult) String() string {
	var sb strings.Builder
	for _, row := range c.TableRows() {
		fmt.Fprintf(&sb, "%s: %s\n", row[0], row[1])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func joinNames[T ~string](vals []T) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = string(v)
	}
	return strings.Join(s, ", ")
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the accepted values of every reaction field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, catalogResult{reaction.Snapshot()})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate})
		},
	}
}
