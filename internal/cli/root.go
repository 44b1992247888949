// Package cli implements lendctl, the operator tool for keys, attestations
// and access tokens.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lendctl",
		Short:         "Operator tool for the UnEmpower lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newKeygenCmd(), newHashCmd(), newSignCmd(), newTokenCmd(), newUnitsCmd())
	return root
}

// Execute runs lendctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// domainFlags registers --chain-id and --verifier on cmd.
func domainFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("chain-id", 31337, "EIP-712 chain id")
	cmd.Flags().String("verifier", "", "verifier contract address (required)")
	_ = cmd.MarkFlagRequired("verifier")
	cmd.Flags().StringP("file", "f", "-", "attestation JSON file, - for stdin")
}

func readDomain(cmd *cobra.Command) (attestation.Domain, error) {
	chainID, _ := cmd.Flags().GetInt64("chain-id")
	verifier, _ := cmd.Flags().GetString("verifier")
	if !common.IsHexAddress(verifier) {
		return attestation.Domain{}, fmt.Errorf("invalid verifier address %q", verifier)
	}
	return attestation.Domain{ChainID: big.NewInt(chainID), VerifyingContract: common.HexToAddress(verifier)}, nil
}

func readAttestation(cmd *cobra.Command) (attestation.CreditAttestation, error) {
	path, _ := cmd.Flags().GetString("file")
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return attestation.CreditAttestation{}, fmt.Errorf("open attestation: %w", err)
		}
		defer f.Close()
		r = f
	}
	var att attestation.CreditAttestation
	if err := json.NewDecoder(r).Decode(&att); err != nil {
		return attestation.CreditAttestation{}, fmt.Errorf("decode attestation: %w", err)
	}
	return att, nil
}
