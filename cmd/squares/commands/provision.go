package commands

import (
	"github.com/spf13/cobra"

	"github.com/jacentio/squares/board"
)

func newProvisionCmd(a *app) *cobra.Command {
	var (
		in        board.ProvisionInput
		status    string
		price     float64
		maxOrder  int
		hideNames bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or reset a board with 100 open squares",
		Long: `Create a board, or reset an existing one, with 100 open squares.

Re-provisioning an existing board id reopens every square, including claimed
ones.`,
		Example: `  squares provision --id spring-fund --title "Spring Fundraiser" --price 25
  squares provision --team Doms --max-per-order 5 --hide-names`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			in.Status = board.BoardStatus(status)
			if flags.Changed("price") {
				in.PricePerSquare = &price
			}
			if flags.Changed("max-per-order") {
				in.MaxSquaresPerOrder = &maxOrder
			}
			if flags.Changed("hide-names") {
				show := !hideNames
				in.ShowNamesPublicly = &show
			}

			repo, err := a.repository(cmd.Context())
			if err != nil {
				return a.fail("Cannot open store", err)
			}
			id, err := board.NewProvisioner(repo, a.logger, nil).Provision(cmd.Context(), in)
			if err != nil {
				return a.fail("Provisioning failed", err)
			}
			a.printer.Success("board %s provisioned", id)
			a.printer.Info("url path: /boardId-%s", id)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.BoardID, "id", "", "Board id (generated when empty)")
	f.StringVar(&in.Title, "title", "", "Board title")
	f.StringVar(&in.Subtitle, "subtitle", "", "Board subtitle")
	f.StringVar(&in.TeamName, "team", "", "Team name")
	f.Float64Var(&price, "price", board.DefaultPricePerSquare, "Price per square")
	f.StringVar(&in.PaymentLabel, "payment-label", "", "Payment method label (default Venmo)")
	f.StringVar(&in.PaymentHandle, "payment-handle", "", "Payment handle shown to participants")
	f.IntVar(&maxOrder, "max-per-order", 0, "Most squares per claim (0 is unlimited)")
	f.StringVar(&status, "status", "", "Board status: active or closed")
	f.BoolVar(&hideNames, "hide-names", false, "Hide display names on the public board")
	f.StringVar(&in.Theme.LogoDataURL, "logo", "", "Logo as a data URL")
	f.StringVar(&in.Theme.Accent, "accent", "", "Accent color")
	f.StringVar(&in.Theme.Background, "bg", "", "Background color")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [BOARD_ID]",
		Short: "Provision the demo board",
		Long:  "Provision the demo board under BOARD_ID, or " + board.DemoBoardID + " when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var boardID string
			if len(args) == 1 {
				boardID = args[0]
			}
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return a.fail("Cannot open store", err)
			}
			id, err := board.NewProvisioner(repo, a.logger, nil).Seed(cmd.Context(), boardID)
			if err != nil {
				return a.fail("Seeding failed", err)
			}
			a.printer.Success("board %s seeded with 100 squares", id)
			return nil
		},
	}
}
