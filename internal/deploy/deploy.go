// Package deploy assembles a chain and its contracts from a genesis.
package deploy

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/registry"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/vault"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/workproof"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type Options struct {
	Clock  clockwork.Clock
	Logger *zap.SugaredLogger
	// SignerKey enables attestation issuing. Its address is approved on the
	// verifier if the genesis does not already list it.
	SignerKey     *ecdsa.PrivateKey
	SnowflakeNode int64
	// Store persists the ledger. With a saved snapshot the genesis is not
	// applied again. Without a store, attestations issued before New are
	// rejected.
	Store chain.Store
}

// Deployment is one running set of contracts.
type Deployment struct {
	Operator  common.Address
	Chain     *chain.Chain
	Token     *token.Token
	Registry  *registry.Registry
	WorkProof *workproof.Ledger
	Verifier  *attestation.Verifier
	Vault     *vault.Vault
	// Signer is nil when no signing key is configured.
	Signer *attestation.Signer
}

// New deploys the contracts in a fixed order, so a given genesis always
// yields the same addresses, and applies the genesis state.
func New(ctx context.Context, g config.Genesis, opts Options) (*Deployment, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	op := g.OperatorAddress()
	c := chain.New(chain.Config{
		ChainID: g.ChainIDBig(),
		Clock:   opts.Clock,
		Logger:  opts.Logger.Named("chain"),
		Store:   opts.Store,
	})

	d := &Deployment{Operator: op, Chain: c}
	d.Token = token.New(c, op, g.Token.Name, g.Token.Symbol, g.Token.Decimals)
	d.Registry = registry.New(c, op)
	d.WorkProof = workproof.New(c, op)
	d.Verifier = attestation.NewVerifier(c, op)
	d.Vault = vault.New(c, vault.Config{
		Owner:    op,
		Token:    d.Token,
		Verifier: d.Verifier,
		Workers:  d.Registry,
		Logger:   opts.Logger.Named("vault"),
	})
	if opts.SignerKey != nil {
		ttl, _ := g.TTL()
		s, err := attestation.NewSigner(opts.SignerKey, d.Verifier.Domain(), opts.SnowflakeNode,
			attestation.WithClock(opts.Clock), attestation.WithTTL(ttl))
		if err != nil {
			return nil, err
		}
		d.Signer = s
	}

	restored, err := c.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if restored {
		err = d.resume(ctx)
	} else {
		err = c.Exec(ctx, func(tx *chain.Tx) error {
			if err := d.applyGenesis(tx.Context(), g); err != nil {
				return err
			}
			if opts.Store == nil {
				return d.Verifier.RejectIssuedBefore(tx.Context(), op, tx.Unix())
			}
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	opts.Logger.Infow("contracts deployed",
		"chain_id", g.ChainID,
		"epoch", c.Epoch(),
		"restored", restored,
		"operator", op.Hex(),
		"token", d.Token.Address().Hex(),
		"registry", d.Registry.Address().Hex(),
		"workproof", d.WorkProof.Address().Hex(),
		"verifier", d.Verifier.Address().Hex(),
		"vault", d.Vault.Address().Hex(),
	)
	return d, nil
}

func (d *Deployment) applyGenesis(ctx context.Context, g config.Genesis) error {
	op := d.Operator
	signers := g.SignerAddresses()
	if d.Signer != nil && !contains(signers, d.Signer.Address()) {
		signers = append(signers, d.Signer.Address())
	}
	for _, s := range signers {
		if err := d.Verifier.ApproveSigner(ctx, op, s); err != nil {
			return fmt.Errorf("approve signer %s: %w", s.Hex(), err)
		}
	}
	for _, v := range g.VerifierAddresses() {
		if d.WorkProof.IsVerifier(ctx, v) {
			continue
		}
		if err := d.WorkProof.AuthorizeVerifier(ctx, op, v); err != nil {
			return fmt.Errorf("authorize verifier %s: %w", v.Hex(), err)
		}
	}
	for _, m := range g.Token.Mint {
		amount, _ := utilities.ParseUnits(m.Amount, g.Token.Decimals)
		if err := d.Token.Mint(ctx, op, common.HexToAddress(m.Address), amount); err != nil {
			return fmt.Errorf("mint: %w", err)
		}
	}
	deposit, _ := g.Deposit()
	if deposit.Sign() > 0 {
		if err := d.Token.Approve(ctx, op, d.Vault.Address(), deposit); err != nil {
			return err
		}
		if err := d.Vault.Deposit(ctx, op, deposit); err != nil {
			return fmt.Errorf("pool deposit: %w", err)
		}
	}
	return nil
}

// resume runs after a restore. The genesis is already part of the saved
// state; only a signing key that is new since then needs approving.
func (d *Deployment) resume(ctx context.Context) error {
	if d.Signer == nil || d.Verifier.IsApprovedSigner(ctx, d.Signer.Address()) {
		return nil
	}
	return d.Verifier.ApproveSigner(ctx, d.Operator, d.Signer.Address())
}

// FormatUnits renders amount in the deployment token's decimals.
func (d *Deployment) FormatUnits(amount *big.Int) string {
	return utilities.FormatUnits(amount, d.Token.Decimals())
}

func contains(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
