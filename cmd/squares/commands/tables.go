package commands

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"
)

func newTablesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage the DynamoDB tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the boards, squares and claims tables if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(cmd.Context())
			if err != nil {
				return a.fail("Cannot open store", err)
			}
			for _, def := range s.TableDefinitions() {
				a.printer.Step("ensuring table %s", aws.ToString(def.TableName))
			}
			if err := s.EnsureTables(cmd.Context()); err != nil {
				return a.printer.Error("Table creation failed", err.Error(),
					"Start DynamoDB Local and set SQUARES_LOCAL=true",
					"Set SQUARES_DYNAMODB_ENDPOINT to a reachable endpoint")
			}
			a.printer.Success("tables ready")
			return nil
		},
	})
	return cmd
}
