package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/squares/board"
)

func newClaimCmd(a *app) *cobra.Command {
	var (
		boardID string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "claim SQUARE...",
		Short: "Claim squares on a board",
		Long: `Claim squares on a board under a display name, as a participant would.
The claim is recorded as unpaid.`,
		Example: `  squares claim --board spring-fund --name "Ann B" 3 4 17`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return a.fail("Cannot open store", err)
			}
			claimer := board.NewClaimer(repo, board.ClaimerOptions{
				Mode:   a.cfg.Mode(),
				Logger: a.logger,
			})
			res, err := claimer.Claim(cmd.Context(), board.ClaimRequest{
				BoardID:     boardID,
				DisplayName: name,
				Squares:     args,
			})
			if err != nil {
				var e *board.Error
				if errors.As(err, &e) && len(e.Taken) > 0 {
					return a.printer.Error("Claim failed", e.Message,
						"Pick squares other than "+strings.Join(e.Taken, ", "))
				}
				return a.fail("Claim failed", err)
			}
			a.printer.Success("claimed %s for %s", strings.Join(res.Squares, ", "), res.DisplayName)
			a.printer.Info("claim id: %s (%s)", res.ClaimID, res.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "Board id")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
