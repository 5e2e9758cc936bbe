package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// modelInfo is the JSON shape of a model listing.
type modelInfo struct {
	Name       string         `json:"name"`
	Table      string         `json:"table"`
	Fields     []fieldInfo    `json:"fields"`
	Relations  []relationInfo `json:"relations,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

type fieldInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Type    string `json:"type"`
	Formula string `json:"formula,omitempty"`
}

type relationInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Model   string `json:"model"`
	Link    string `json:"link"`
	Cascade bool   `json:"cascade,omitempty"`
}

func describeModel(m *types.Model) modelInfo {
	info := modelInfo{Name: m.Name, Table: m.TableName()}
	for _, f := range m.Fields {
		fi := fieldInfo{Name: f.Name, Kind: string(f.Kind), Type: string(f.Type), Formula: f.Formula}
		if a := f.Aggregate; a != nil {
			fi.Formula = fmt.Sprintf("%s(%s.%s)", a.Func, a.Relation, a.Field)
		}
		info.Fields = append(info.Fields, fi)
	}
	for _, r := range m.Relations {
		info.Relations = append(info.Relations, relationInfo{
			Name: r.Name, Kind: string(r.Kind), Model: r.Model, Link: r.LinkField, Cascade: r.Cascade,
		})
	}
	if len(m.Conditions) > 0 {
		info.Conditions = make(map[string]any, len(m.Conditions))
		for _, c := range m.Conditions {
			info.Conditions[c.Field] = c.Value
		}
	}
	return info
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models in the definitions file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := a.loadDefinitions()
			if err != nil {
				return err
			}
			infos := make([]modelInfo, 0)
			for _, m := range defs.Registry.Models() {
				infos = append(infos, describeModel(m))
			}
			if a.wantJSON() {
				return a.writeJSON(cmd.OutOrStdout(), infos)
			}

			w := cmd.OutOrStdout()
			for _, info := range infos {
				fmt.Fprintf(w, "%s (table %s)\n", info.Name, info.Table)
				for _, f := range info.Fields {
					line := fmt.Sprintf("  %-14s %-9s %s", f.Name, f.Type, f.Kind)
					if f.Formula != "" {
						line += " = " + f.Formula
					}
					fmt.Fprintln(w, strings.TrimRight(line, " "))
				}
				for _, r := range info.Relations {
					fmt.Fprintf(w, "  %-14s %-9s -> %s via %s\n", r.Name, r.Kind, r.Model, r.Link)
				}
			}
			return nil
		},
	}
}
