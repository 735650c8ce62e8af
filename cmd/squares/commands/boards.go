package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/keys"
	"github.com/jacentio/squares/internal/printer"
)

func newBoardsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "Inspect boards",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every board with its taken-square tally",
		Long: `List every board. The TAKEN column is the tally kept by the stream
handler and may lag behind the squares.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return a.fail("Cannot open store", err)
			}
			boards, err := board.NewProvisioner(repo, a.logger, nil).ListBoards(cmd.Context())
			if err != nil {
				return a.fail("Listing boards failed", err)
			}
			if len(boards) == 0 {
				a.printer.Warning("no boards")
				return nil
			}

			rows := make([]printer.Row, 0, len(boards))
			for _, b := range boards {
				rows = append(rows, printer.Row{
					b.ID,
					string(b.Status),
					b.Title,
					strconv.FormatFloat(b.PricePerSquare, 'f', -1, 64),
					strconv.Itoa(b.SquaresTaken),
				})
			}
			a.printer.Table(printer.Row{"ID", "STATUS", "TITLE", "PRICE", "TAKEN"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show BOARD_ID",
		Short: "Show a board as a 10x10 grid",
		Long: `Show a board as a 10x10 grid. Taken squares are marked with '*' and listed
below the grid with their display names.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return a.fail("Cannot open store", err)
			}
			view, err := board.NewReader(repo).GetBoard(cmd.Context(), args[0])
			if err != nil {
				return a.fail("Reading board failed", err)
			}
			a.printBoard(view)
			return nil
		},
	})
	return cmd
}

func (a *app) printBoard(view *board.BoardView) {
	b := view.Board
	a.printer.Info("%s  %s", b.ID, b.Title)
	a.printer.Info("status %s, %s per square, %d/%d taken",
		b.Status, strconv.FormatFloat(b.PricePerSquare, 'f', -1, 64), b.SquaresTaken, keys.MaxSquare)

	header := make(printer.Row, keys.GridSize)
	for c := range header {
		header[c] = fmt.Sprintf("c%d", c)
	}
	grid := make([]printer.Row, keys.GridSize)
	for r := range grid {
		grid[r] = make(printer.Row, keys.GridSize)
	}
	var taken []printer.Row
	for _, sq := range view.Squares {
		if sq.Row < 0 || sq.Col < 0 || sq.Row >= keys.GridSize || sq.Col >= keys.GridSize {
			continue
		}
		cell := sq.ID
		if sq.Status == board.SquareTaken {
			cell += "*"
			taken = append(taken, printer.Row{sq.ID, sq.DisplayName})
		}
		grid[sq.Row][sq.Col] = cell
	}
	a.printer.Table(header, grid)

	if len(taken) > 0 {
		a.printer.Info("")
		a.printer.Table(printer.Row{"SQUARE", "NAME"}, taken)
	}
}
