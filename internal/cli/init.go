package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize recopy configuration and storage",
		Long: `Create the configuration directory with a default config.yaml and
models.yaml, then create the database tables for every model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd)
		},
	}
}

func (a *app) runInit(cmd *cobra.Command) error {
	wroteConfig, err := writeConfigIfMissing(a.configDir, configFile{
		Backend: types.BackendSQLite,
		DataDir: a.flags.dataDir,
	})
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if wroteConfig {
		// Pick up data_dir from the file just written.
		if a.config, err = loadConfig(a.configDir); err != nil {
			return err
		}
	}

	modelsPath, err := a.resolveModelsFile()
	if err != nil {
		return fmt.Errorf("resolve models file: %w", err)
	}
	if _, err := writeModelsIfMissing(modelsPath); err != nil {
		return fmt.Errorf("write models: %w", err)
	}

	backend, defs, err := a.attachBackend()
	if err != nil {
		return err
	}
	defer backend.Detach()

	dataDir, err := a.resolveDataDir()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "recopy initialized successfully")
	fmt.Fprintln(w, "  config:", a.configDir)
	fmt.Fprintln(w, "  models:", modelsPath, fmt.Sprintf("(%d models)", len(defs.Registry.Models())))
	fmt.Fprintln(w, "  data:  ", dataDir)
	return nil
}
