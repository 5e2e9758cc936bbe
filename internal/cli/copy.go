package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/pkg/deepcopy"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// copyFlags holds the flags of the copy command.
type copyFlags struct {
	with   []string
	set    []string
	alias  []string
	repeat int
}

// copyResult is the JSON shape of one copy.
type copyResult struct {
	Session  string          `json:"session"`
	Source   string          `json:"source"`
	SourceID int64           `json:"source_id"`
	Records  []*types.Record `json:"records"`
}

func newCopyCmd(a *app) *cobra.Command {
	var cf copyFlags
	cmd := &cobra.Command{
		Use:   "copy <source-model> <id> <dest-model>",
		Short: "Deep-copy a record into another model",
		Long: `Copy writes the source record, and the relations named with --with, into
the destination model. Computed and aggregate fields are derived by the
destination model's own formulas.

--repeat copies the same source several times in one session; every
repetition after the first updates the records written by the first.`,
		Example: `  recopy copy quote 1 invoice --with Lines
  recopy copy quote 1 invoice --with Lines --set is_paid=true --alias ref=id`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCopy(cmd, args, cf)
		},
	}
	cmd.Flags().StringSliceVar(&cf.with, "with", nil, "relations to copy, dotted for nested (Lines.Notes)")
	cmd.Flags().StringArrayVar(&cf.set, "set", nil, "override a destination field: field=value")
	cmd.Flags().StringArrayVar(&cf.alias, "alias", nil, "copy a differently named source field: dest=source")
	cmd.Flags().IntVar(&cf.repeat, "repeat", 1, "number of times to copy within one session")
	return cmd
}

func (a *app) runCopy(cmd *cobra.Command, args []string, cf copyFlags) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	if cf.repeat < 1 {
		return fmt.Errorf("%w: --repeat must be at least 1", errUsage)
	}
	overrides, err := parseAssignments(cf.set)
	if err != nil {
		return err
	}
	aliases := make(map[string]string, len(cf.alias))
	for _, kv := range cf.alias {
		dest, src, ok := strings.Cut(kv, "=")
		if !ok || dest == "" || src == "" {
			return fmt.Errorf("%w: invalid alias %q (expected dest=source)", errUsage, kv)
		}
		aliases[dest] = src
	}

	backend, defs, err := a.attachBackend()
	if err != nil {
		return err
	}
	defer backend.Detach()

	srcModel, err := defs.Registry.Model(args[0])
	if err != nil {
		return err
	}
	dstModel, err := defs.Registry.Model(args[2])
	if err != nil {
		return err
	}
	src, err := backend.Load(cmd.Context(), srcModel, id)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	s := deepcopy.NewSession(backend,
		deepcopy.WithLogger(a.logger),
		deepcopy.WithMetrics(deepcopy.NewMetrics(metrics)),
		deepcopy.WithTracer(otel.Tracer(modulePath)),
	)
	defs.Apply(s)
	for field, v := range overrides {
		s.Set(field, v)
	}
	for dest, from := range aliases {
		s.Alias(dest, from)
	}
	if err := s.Configure(src, dstModel, cf.with...); err != nil {
		return err
	}

	result := copyResult{Session: s.ID(), Source: srcModel.Name, SourceID: src.ID}
	for range cf.repeat {
		rec, err := s.Copy(cmd.Context())
		if err != nil {
			return err
		}
		result.Records = append(result.Records, rec)
	}
	a.logCounters(metrics)

	if a.wantJSON() {
		return a.writeJSON(cmd.OutOrStdout(), result)
	}
	a.printCopySummary(cmd, result)
	return nil
}

func (a *app) printCopySummary(cmd *cobra.Command, r copyResult) {
	w := cmd.OutOrStdout()
	paint := func(attrs ...color.Attribute) func(...any) string {
		c := color.New(attrs...)
		if w != io.Writer(os.Stdout) {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	ok := paint(color.FgGreen, color.Bold)
	dim := paint(color.Faint)
	for i, rec := range r.Records {
		verb := "created"
		if i > 0 && rec.ID == r.Records[0].ID {
			verb = "updated"
		}
		line := fmt.Sprintf("%s %s %d -> %s %d", ok(verb), r.Source, r.SourceID, rec.Model.Name, rec.ID)
		if total, err := rec.Value("total"); err == nil && total != nil {
			line += fmt.Sprintf(" (total %s)", formatValue(total))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, dim("session "+r.Session))
}

// logCounters logs the copy counters at debug level.
func (a *app) logCounters(g prometheus.Gatherer) {
	counts, err := counterValues(g)
	if err != nil {
		a.logger.Debug("gathering copy metrics", zap.Error(err))
		return
	}
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		a.logger.Debug("copy metric", zap.String("metric", name), zap.Float64("value", counts[name]))
	}
}

// counterValues flattens the counters gathered from g into
// name{label=value,...} keys.
func counterValues(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			out[mf.GetName()+"{"+strings.Join(labels, ",")+"}"] = c.GetValue()
		}
	}
	return out, nil
}
