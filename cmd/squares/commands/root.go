// Package commands implements the squares CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/config"
	"github.com/jacentio/squares/internal/logger"
	"github.com/jacentio/squares/internal/printer"
	"github.com/jacentio/squares/store"
)

// Options overrides process wiring. The zero value uses the process
// environment, stdout/stderr and DynamoDB.
type Options struct {
	Out io.Writer
	Err io.Writer

	// Env replaces the process environment when non-nil.
	Env map[string]string

	// Repository replaces the DynamoDB repository when non-nil.
	Repository board.Repository

	Version string
}

// app is the state shared by every command of one invocation.
type app struct {
	opts    Options
	cfg     config.Config
	printer *printer.Printer
	logger  *slog.Logger
}

// repository opens the board repository for the configured backend.
func (a *app) repository(ctx context.Context) (board.Repository, error) {
	if a.opts.Repository != nil {
		return a.opts.Repository, nil
	}
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return board.NewDynamoRepository(s), nil
}

func (a *app) store(ctx context.Context) (*store.Store, error) {
	client, err := a.cfg.NewDynamoDBClient(ctx)
	if err != nil {
		return nil, err
	}
	return store.New(client, a.cfg.Store()), nil
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts Options) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "squares",
		Short: "Squares - 100-square fundraiser boards",
		Long: `Squares runs 100-square fundraiser boards. Participants claim squares
under a display name and pay out of band; the service guarantees a square is
never held by two claims.

State lives in three DynamoDB tables (boards, squares, claims). Configure the
tables and endpoint with SQUARES_* environment variables.`,
		Version:       opts.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.printer = printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
			cfg, err := config.LoadFrom(opts.Env)
			if err != nil {
				return a.printer.Error("Invalid configuration", err.Error(),
					"Check the SQUARES_* environment variables")
			}
			a.cfg = cfg
			a.logger = logger.SetupDefault(cmd.ErrOrStderr(), cfg.Level())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}
	if opts.Err != nil {
		root.SetErr(opts.Err)
	}

	root.AddCommand(
		newServeCmd(a),
		newTablesCmd(a),
		newProvisionCmd(a),
		newSeedCmd(a),
		newBoardsCmd(a),
		newClaimCmd(a),
	)
	return root
}

// Execute runs the CLI against the process environment.
func Execute(version string) error {
	return NewRootCommand(Options{Version: version}).Execute()
}

// fail prints err under title with board-aware hints.
func (a *app) fail(title string, err error) error {
	switch board.Outcome(err) {
	case "store_error":
		return a.printer.Error(title, err.Error(),
			"Check that DynamoDB is reachable (SQUARES_LOCAL=true targets DynamoDB Local)",
			"Run 'squares tables create' if the tables do not exist")
	default:
		return a.printer.Error(title, fmt.Sprint(err))
	}
}
