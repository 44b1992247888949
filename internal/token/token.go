// Package token implements the ERC-20 style ledger the vault lends out of.
package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/access"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
)

var (
	ErrInsufficientBalance   = chain.NewRevert("ERC20InsufficientBalance")
	ErrInsufficientAllowance = chain.NewRevert("ERC20InsufficientAllowance")
	ErrInvalidReceiver       = chain.NewRevert("ERC20InvalidReceiver")
	ErrInvalidAmount         = chain.NewRevert("ERC20InvalidAmount")
)

type Transfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

func (Transfer) EventName() string { return "Transfer" }

type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *big.Int       `json:"value"`
}

func (Approval) EventName() string { return "Approval" }

// Receiver is notified after tokens arrive at an address that registered
// one. The hook runs inside the transfer's transaction; an error reverts the
// transfer.
type Receiver interface {
	OnTokensReceived(ctx context.Context, from common.Address, amount *big.Int) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, from common.Address, amount *big.Int) error

func (f ReceiverFunc) OnTokensReceived(ctx context.Context, from common.Address, amount *big.Int) error {
	return f(ctx, from, amount)
}

type allowanceKey struct {
	owner, spender common.Address
}

// Token is a mintable ERC-20 ledger with optional receiver hooks.
type Token struct {
	access.Ownable
	chain    *chain.Chain
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	receivers  map[common.Address]Receiver
}

// New deploys a token owned by owner.
func New(c *chain.Chain, owner common.Address, name, symbol string, decimals uint8) *Token {
	t := &Token{
		Ownable:    access.NewOwnable(owner),
		chain:      c,
		address:    c.Deploy(owner),
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		receivers:  make(map[common.Address]Receiver),
	}
	c.Attach(t)
	return t
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Name() string { return t.name }

func (t *Token) Symbol() string { return t.symbol }

func (t *Token) Decimals() uint8 { return t.decimals }

// SetReceiver registers a hook for addr, or removes it when r is nil.
func (t *Token) SetReceiver(ctx context.Context, addr common.Address, r Receiver) error {
	return t.chain.Exec(ctx, func(tx *chain.Tx) error {
		if r == nil {
			chain.Delete(tx, t.receivers, addr)
		} else {
			chain.Put(tx, t.receivers, addr, r)
		}
		return nil
	})
}

func (t *Token) TotalSupply(ctx context.Context) *big.Int {
	var v *big.Int
	t.chain.View(ctx, func() { v = new(big.Int).Set(t.supply) })
	return v
}

func (t *Token) BalanceOf(ctx context.Context, addr common.Address) *big.Int {
	var v *big.Int
	t.chain.View(ctx, func() { v = t.balanceOf(addr) })
	return v
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) *big.Int {
	var v *big.Int
	t.chain.View(ctx, func() { v = t.allowance(owner, spender) })
	return v
}

// Mint creates amount tokens for to. Owner only.
func (t *Token) Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	return t.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := t.OnlyOwner(caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrInvalidReceiver
		}
		if err := checkAmount(amount); err != nil {
			return err
		}
		chain.Assign(tx, &t.supply, new(big.Int).Add(t.supply, amount))
		t.credit(tx, to, amount)
		tx.Emit(t.address, Transfer{To: to, Value: new(big.Int).Set(amount)})
		return nil
	})
}

// Transfer moves amount from caller to to.
func (t *Token) Transfer(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	return t.chain.Exec(ctx, func(tx *chain.Tx) error {
		return t.move(tx, caller, to, amount)
	})
}

// Approve sets spender's allowance over caller's balance.
func (t *Token) Approve(ctx context.Context, caller, spender common.Address, amount *big.Int) error {
	return t.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := checkAmount(amount); err != nil {
			return err
		}
		chain.Put(tx, t.allowances, allowanceKey{caller, spender}, new(big.Int).Set(amount))
		tx.Emit(t.address, Approval{Owner: caller, Spender: spender, Value: new(big.Int).Set(amount)})
		return nil
	})
}

// TransferFrom moves amount from from to to using caller's allowance.
func (t *Token) TransferFrom(ctx context.Context, caller, from, to common.Address, amount *big.Int) error {
	return t.chain.Exec(ctx, func(tx *chain.Tx) error {
		if err := checkAmount(amount); err != nil {
			return err
		}
		allowed := t.allowance(from, caller)
		if allowed.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		chain.Put(tx, t.allowances, allowanceKey{from, caller}, new(big.Int).Sub(allowed, amount))
		return t.move(tx, from, to, amount)
	})
}

func (t *Token) move(tx *chain.Tx, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	bal := t.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	chain.Put(tx, t.balances, from, new(big.Int).Sub(bal, amount))
	t.credit(tx, to, amount)
	tx.Emit(t.address, Transfer{From: from, To: to, Value: new(big.Int).Set(amount)})

	if r, ok := t.receivers[to]; ok {
		return r.OnTokensReceived(tx.Context(), from, new(big.Int).Set(amount))
	}
	return nil
}

func (t *Token) credit(tx *chain.Tx, to common.Address, amount *big.Int) {
	chain.Put(tx, t.balances, to, new(big.Int).Add(t.balanceOf(to), amount))
}

func (t *Token) balanceOf(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return ErrInvalidAmount
	}
	return nil
}
