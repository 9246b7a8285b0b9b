package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/migration"
	"github.com/smallbiznis/packhub/internal/observability"
	"github.com/smallbiznis/packhub/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var (
	// Version is set via -ldflags.
	Version = "dev"
)

// ExitError carries a non-zero exit code out of a RunE handler.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "packhub",
		Short: "Registry for versioned pack tarballs",
		Long: `packhub stores versioned pack tarballs, resolves their dependency
graphs and notifies subscribers when packs change.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newReconcileCommand())
	root.AddCommand(newTokenCommand())
	return root
}

// coreModules are shared by every command that touches the database.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
