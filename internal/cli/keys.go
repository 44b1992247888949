package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

// ─── keygen ─────────────────────────────────────────────────────────────────

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"address":     crypto.PubkeyToAddress(key.PublicKey).Hex(),
				"private_key": hexutil.Encode(crypto.FromECDSA(key)),
			})
		},
	}
}

// ─── hash ───────────────────────────────────────────────────────────────────

func newHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the EIP-712 hashes of an attestation",
		Long: `Print the domain separator, struct hash and signing digest of an
attestation. Compare them with a wallet's output to debug signer mismatches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDomain(cmd)
			if err != nil {
				return err
			}
			att, err := readAttestation(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), attestation.Debug(d, att))
		},
	}
	domainFlags(cmd)
	return cmd
}

// ─── sign ───────────────────────────────────────────────────────────────────

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an attestation with the signer key",
		Long: `Sign a fully specified attestation. The key is read from --key or,
when omitted, from SIGNER_PRIVATE_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hexKey, _ := cmd.Flags().GetString("key")
			if hexKey == "" {
				hexKey = os.Getenv("SIGNER_PRIVATE_KEY")
			}
			if hexKey == "" {
				return fmt.Errorf("signing key required: --key or SIGNER_PRIVATE_KEY")
			}
			key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			d, err := readDomain(cmd)
			if err != nil {
				return err
			}
			att, err := readAttestation(cmd)
			if err != nil {
				return err
			}
			s, err := attestation.NewSigner(key, d, utilities.SnowflakeNodeFromEnv())
			if err != nil {
				return err
			}
			signed, err := s.SignAttestation(att)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), signed)
		},
	}
	domainFlags(cmd)
	cmd.Flags().String("key", "", "hex private key")
	return cmd
}
