package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

// ─── token ──────────────────────────────────────────────────────────────────

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token ADDRESS",
		Short: "Mint an API access token",
		Long: `Mint an access token for ADDRESS with the service secret (AUTH_SECRET).
Used to bootstrap the operator or automation without a wallet login.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			operator, _ := cmd.Flags().GetBool("operator")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			svc, err := auth.NewService(auth.Config{Secret: []byte(os.Getenv("AUTH_SECRET")), AccessTTL: ttl})
			if err != nil {
				return err
			}
			tok, err := svc.Issue(auth.Identity{Address: common.HexToAddress(args[0]), Operator: operator})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Bool("operator", false, "grant the operator claim")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}

// ─── units ──────────────────────────────────────────────────────────────────

func newUnitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units AMOUNT",
		Short: "Convert between token units and base units",
		Long: `Convert a human amount such as 12.5 into base units, or with --reverse
a base-unit integer into token units.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decimals, _ := cmd.Flags().GetUint8("decimals")
			reverse, _ := cmd.Flags().GetBool("reverse")
			if reverse {
				v, err := utilities.ParseBaseUnits(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), utilities.FormatUnits(v, decimals))
				return nil
			}
			v, err := utilities.ParseUnits(args[0], decimals)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return nil
		},
	}
	cmd.Flags().Uint8("decimals", 6, "token decimals")
	cmd.Flags().Bool("reverse", false, "convert base units to token units")
	return cmd
}
