// Package cli implements the recopy command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/internal/paths"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir  string
	dataDir    string
	modelsFile string
	envFile    string
	jsonMode   bool
	query      string
	logLevel   string
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	flags     rootFlags
	configDir string
	config    *viper.Viper
	logger    *zap.Logger
}

// NewRootCmd creates the top-level "recopy" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "recopy",
		Short: "Deep-copy records and their relations between models",
		Long: `recopy stores records described by YAML model definitions in SQLite and
copies a record, with the relations you name, into another model. Copying
the same source again updates the records written the first time.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.logger.Sync() },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.recopy-db)")
	pf.StringVar(&a.flags.modelsFile, "models", "", "model definitions file (default: <config-dir>/models.yaml)")
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.query, "query", "", "JMESPath expression applied to JSON output")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newModelsCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newCopyCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "recopy:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps errors caused by the caller's input to exitUserError and
// everything else to exitSysError.
func exitCode(err error) int {
	for _, user := range []error{
		errUsage,
		types.ErrNotFound,
		types.ErrInvalidID,
		types.ErrMalformedRecord,
		types.ErrUnknownModel,
		types.ErrUnknownField,
		types.ErrUnknownRelation,
		types.ErrCyclicRelation,
		types.ErrTypeMismatch,
		types.ErrInvalidModel,
		types.ErrInvalidState,
		types.ErrComputedField,
	} {
		if errors.Is(err, user) {
			return exitUserError
		}
	}
	return exitSysError
}

// errUsage marks malformed arguments.
var errUsage = errors.New("usage")

// setup loads .env, builds the logger, and reads config.yaml.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(a.flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.flags.envFile, err)
	}

	logger, err := newLogger(a.flags.logLevel)
	if err != nil {
		return err
	}
	a.logger = logger

	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	a.configDir = configDir
	a.config = cfg
	a.logger.Debug("configuration loaded",
		zap.String("config_dir", configDir), zap.String("file", cfg.ConfigFileUsed()))
	return nil
}

func (a *app) resolveDataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.config.GetString(cfgKeyDataDir))
}

func (a *app) resolveModelsFile() (string, error) {
	return paths.ResolveModelsFile(a.flags.modelsFile, a.config.GetString(cfgKeyModels), a.configDir)
}
