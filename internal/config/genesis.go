package config

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

// Genesis describes the deployment the service boots with.
//
//	chain_id = 31337
//	operator = "0xf39F..."
//	signers = ["0x7099..."]
//	attestation_ttl = "15m"
//	pool_deposit = "500000"
//
//	[token]
//	name = "Mock USDC"
//	symbol = "USDC"
//	decimals = 6
//
//	[[token.mint]]
//	address = "0xf39F..."
//	amount = "1000000"
//
// Amounts are human units with up to decimals fractional digits.
type Genesis struct {
	ChainID        int64    `toml:"chain_id"`
	Operator       string   `toml:"operator"`
	Signers        []string `toml:"signers"`
	Verifiers      []string `toml:"verifiers"`
	AttestationTTL string   `toml:"attestation_ttl"`
	PoolDeposit    string   `toml:"pool_deposit"`
	Token          Token    `toml:"token"`
}

type Token struct {
	Name     string       `toml:"name"`
	Symbol   string       `toml:"symbol"`
	Decimals uint8        `toml:"decimals"`
	Mint     []Allocation `toml:"mint"`
}

type Allocation struct {
	Address string `toml:"address"`
	Amount  string `toml:"amount"`
}

// DefaultGenesis is a local development chain owned by operator.
func DefaultGenesis(operator common.Address) Genesis {
	return Genesis{
		ChainID:        31337,
		Operator:       operator.Hex(),
		AttestationTTL: "15m",
		Token:          Token{Name: "Mock USDC", Symbol: "USDC", Decimals: 6},
	}
}

// LoadGenesis decodes path on top of DefaultGenesis and validates it.
func LoadGenesis(path string, operator common.Address) (Genesis, error) {
	g := DefaultGenesis(operator)
	md, err := toml.DecodeFile(path, &g)
	if err != nil {
		return Genesis{}, fmt.Errorf("genesis: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Genesis{}, fmt.Errorf("genesis: unknown keys %v", undecoded)
	}
	return g, g.Validate()
}

func (g Genesis) Validate() error {
	if g.ChainID <= 0 {
		return errors.New("genesis: chain_id must be positive")
	}
	if !common.IsHexAddress(g.Operator) || common.HexToAddress(g.Operator) == (common.Address{}) {
		return errors.New("genesis: operator must be a non-zero address")
	}
	for _, list := range [][]string{g.Signers, g.Verifiers} {
		for _, a := range list {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("genesis: invalid address %q", a)
			}
		}
	}
	if _, err := g.TTL(); err != nil {
		return err
	}
	if g.Token.Decimals > 36 {
		return errors.New("genesis: token decimals must be at most 36")
	}
	for _, m := range g.Token.Mint {
		if !common.IsHexAddress(m.Address) {
			return fmt.Errorf("genesis: invalid mint address %q", m.Address)
		}
		if _, err := utilities.ParseUnits(m.Amount, g.Token.Decimals); err != nil {
			return fmt.Errorf("genesis: mint amount %q: %w", m.Amount, err)
		}
	}
	if _, err := g.Deposit(); err != nil {
		return err
	}
	return nil
}

func (g Genesis) OperatorAddress() common.Address { return common.HexToAddress(g.Operator) }

func (g Genesis) ChainIDBig() *big.Int { return big.NewInt(g.ChainID) }

// TTL returns the attestation validity window.
func (g Genesis) TTL() (time.Duration, error) {
	if g.AttestationTTL == "" {
		return 15 * time.Minute, nil
	}
	d, err := time.ParseDuration(g.AttestationTTL)
	if err != nil || d < time.Second {
		return 0, fmt.Errorf("genesis: invalid attestation_ttl %q", g.AttestationTTL)
	}
	return d, nil
}

// Deposit returns the initial pool deposit in base units.
func (g Genesis) Deposit() (*big.Int, error) {
	if g.PoolDeposit == "" {
		return new(big.Int), nil
	}
	v, err := utilities.ParseUnits(g.PoolDeposit, g.Token.Decimals)
	if err != nil {
		return nil, fmt.Errorf("genesis: pool_deposit %q: %w", g.PoolDeposit, err)
	}
	return v, nil
}

func addresses(in []string) []common.Address {
	out := make([]common.Address, 0, len(in))
	for _, a := range in {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

func (g Genesis) SignerAddresses() []common.Address   { return addresses(g.Signers) }
func (g Genesis) VerifierAddresses() []common.Address { return addresses(g.Verifiers) }
