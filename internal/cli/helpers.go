package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/internal/modeldef"
	"github.com/mesh-intelligence/recopy/internal/sqlite"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// loadDefinitions reads the resolved model definitions file.
func (a *app) loadDefinitions() (*modeldef.Definitions, error) {
	path, err := a.resolveModelsFile()
	if err != nil {
		return nil, fmt.Errorf("resolve models file: %w", err)
	}
	defs, err := modeldef.Load(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("model definitions loaded", zap.String("path", path),
		zap.Int("models", len(defs.Registry.Models())))
	return defs, nil
}

// attachBackend loads the model definitions and attaches a SQLite backend
// for them. The caller must defer backend.Detach().
func (a *app) attachBackend() (*sqlite.Backend, *modeldef.Definitions, error) {
	defs, err := a.loadDefinitions()
	if err != nil {
		return nil, nil, err
	}
	dataDir, err := a.resolveDataDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		Backend: a.config.GetString(cfgKeyBackend),
		DataDir: dataDir,
	}
	backend := sqlite.NewBackend(defs.Registry, sqlite.WithLogger(a.logger))
	if err := backend.Attach(cfg); err != nil {
		return nil, nil, fmt.Errorf("attach backend: %w", err)
	}
	return backend, defs, nil
}

// parseID parses a positive record ID argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errUsage, arg)
	}
	return id, nil
}

// parseAssignments turns key=value arguments into a map. Values that are
// valid JSON are decoded; anything else is kept as a string.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: invalid assignment %q (expected key=value)", errUsage, arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		out[key] = parsed
	}
	return out, nil
}

// writeJSON prints v as indented JSON, filtered through --query when set.
func (a *app) writeJSON(w io.Writer, v any) error {
	if a.flags.query != "" {
		// Round-trip through JSON so the query sees plain maps and slices.
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		var plain any
		if err := json.Unmarshal(data, &plain); err != nil {
			return fmt.Errorf("decode output: %w", err)
		}
		if v, err = jmespath.Search(a.flags.query, plain); err != nil {
			return fmt.Errorf("%w: --query: %w", errUsage, err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// wantJSON reports whether output should be JSON. --query implies --json.
func (a *app) wantJSON() bool {
	return a.flags.jsonMode || a.flags.query != ""
}

// writeRecord prints a record as "field: value" lines in declaration
// order, or as JSON.
func (a *app) writeRecord(cmd *cobra.Command, rec *types.Record) error {
	if a.wantJSON() {
		return a.writeJSON(cmd.OutOrStdout(), rec)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %d\n", rec.Model.Name, rec.ID)
	for _, f := range rec.Model.Fields {
		fmt.Fprintf(w, "  %s: %s\n", f.Name, formatValue(rec.Get(f.Name)))
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "-"
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
