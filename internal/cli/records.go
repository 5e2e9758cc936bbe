package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <model> <id>",
		Short: "Show a record",
		Example: `  recopy get invoice 1
  recopy get invoice 1 --query total`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			backend, defs, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			model, err := defs.Registry.Model(args[0])
			if err != nil {
				return err
			}
			rec, err := backend.Load(cmd.Context(), model, id)
			if err != nil {
				return err
			}
			return a.writeRecord(cmd, rec)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <model> [field=value...]",
		Short: "List records of a model",
		Long: `List prints every record of a model. Filters are field=value pairs and
are ANDed together; values are compared after conversion to the field's
type.`,
		Example: `  recopy list quote_line
  recopy list invoice is_paid=false --query '[].id'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			backend, defs, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			model, err := defs.Registry.Model(args[0])
			if err != nil {
				return err
			}
			want, err := coerceFilter(model, filter)
			if err != nil {
				return err
			}
			all, err := backend.List(cmd.Context(), model)
			if err != nil {
				return err
			}
			recs := make([]*types.Record, 0, len(all))
			for _, rec := range all {
				if matchesFilter(rec, want) {
					recs = append(recs, rec)
				}
			}

			if a.wantJSON() {
				return a.writeJSON(cmd.OutOrStdout(), recs)
			}
			for _, rec := range recs {
				if err := a.writeRecord(cmd, rec); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records\n", len(recs))
			return nil
		},
	}
}

// coerceFilter converts filter values to the types of their fields.
func coerceFilter(model *types.Model, filter map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	for name, v := range filter {
		if name == types.IDField {
			id, err := types.Coerce(types.ValueTypeInteger, v)
			if err != nil {
				return nil, err
			}
			out[name] = id
			continue
		}
		f, ok := model.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", types.ErrUnknownField, model.Name, name)
		}
		cv, err := f.Coerce(v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}

func matchesFilter(rec *types.Record, want map[string]any) bool {
	for name, v := range want {
		if rec.Get(name) != v {
			return false
		}
	}
	return true
}
