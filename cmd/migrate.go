package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openfga/datagate/cmd/util"
	"github.com/openfga/datagate/internal/config"
	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/storage/migrate"
)

const (
	versionFlag          = "version"
	timeoutFlag          = "timeout"
	verboseMigrationFlag = "verbose"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database schema migrations needed for datagate",
		Long:  `The migrate command is used to migrate the database schema holding collections and datasets.`,
		RunE:  runMigration,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()

	addDatastoreFlags(flags, config.DefaultConfig())
	flags.Uint(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")
	flags.Duration(timeoutFlag, 1*time.Minute, "a timeout for the time it takes the migrate process to connect to the database")
	flags.Bool(verboseMigrationFlag, false, "enable verbose migration logs (default false)")

	// NOTE: if you add a new flag here, add the binding in PreRun
	bindDatastore := bindFlagsFunc(datastoreFlags)
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindDatastore(cmd, args)

		util.MustBind(cmd.Flags(),
			util.Binding{Key: versionFlag, Flag: versionFlag},
			util.Binding{Key: timeoutFlag, Flag: timeoutFlag, Env: "DATAGATE_MIGRATE_TIMEOUT"},
			util.Binding{Key: verboseMigrationFlag, Flag: verboseMigrationFlag},
		)
	}

	return cmd
}

func runMigration(cmd *cobra.Command, _ []string) error {
	engine := viper.GetString("datastore.engine")
	if _, err := NewDatastoreEngine(engine); err != nil {
		return err
	}

	verbose := viper.GetBool(verboseMigrationFlag)
	level := "info"
	if verbose {
		level = "debug"
	}
	l, err := logger.NewLogger("text", level)
	if err != nil {
		return err
	}

	cfg := migrate.MigrationConfig{
		Engine:        engine,
		URI:           viper.GetString("datastore.uri"),
		TargetVersion: viper.GetUint(versionFlag),
		Timeout:       viper.GetDuration(timeoutFlag),
		Verbose:       verbose,
		Username:      viper.GetString("datastore.username"),
		Password:      viper.GetString("datastore.password"),
		Logger:        l,
	}

	if err := migrate.RunMigrations(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := migrate.CurrentVersion(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	l.Info("migration done", zap.String("engine", engine), zap.Int64("version", version))
	return nil
}
