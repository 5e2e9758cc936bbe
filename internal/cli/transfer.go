package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <model> <file.jsonl>",
		Short: "Import records from a JSONL file",
		Long: `Import inserts one record per line of a JSONL file. Has-many relations
may be nested under their relation name:

  {"ref": "Q-1", "Lines": [{"name": "tools", "qty": 5, "price": 10}]}

The file is imported in one transaction; records get new IDs.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, defs, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			model, err := defs.Registry.Model(args[0])
			if err != nil {
				return err
			}
			n, err := backend.Import(cmd.Context(), model, args[1])
			if err != nil {
				return err
			}
			a.logger.Info("import complete", zap.String("model", model.Name), zap.Int("records", n))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s records\n", n, model.Name)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <model> [file.jsonl]",
		Short: "Export records to a JSONL file",
		Long: `Export writes every record of a model, with its has-many relations nested,
to a JSONL file. The default file is <data-dir>/<model>.jsonl.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, defs, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer backend.Detach()

			model, err := defs.Registry.Model(args[0])
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 2 {
				path = args[1]
			} else {
				dataDir, err := a.resolveDataDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dataDir, model.Name+".jsonl")
			}
			n, err := backend.Export(cmd.Context(), model, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d %s records to %s\n", n, model.Name, path)
			return nil
		},
	}
}
