package payqueue

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TokenBackend is the capability the engine uses to observe and move tokens.
// Tokens are untrusted: implementations must distinguish "call reverted",
// "call succeeded but returned false", and "callee has no code", and map all
// three to ErrTransferFailed, while a clean success (true or empty return)
// maps to nil.
type TokenBackend interface {
	// BalanceOf returns account's balance of the given token. An error also
	// serves as the token liveness probe during order validation.
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)

	// Allowance returns the amount spender may pull from owner.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// HasCode reports whether the token address carries executable code.
	HasCode(ctx context.Context, token common.Address) (bool, error)

	// TryTransferFrom moves amount of token from from to to on behalf of the
	// processor. Any ambiguous or failed outcome returns an error wrapping
	// ErrTransferFailed; it never panics or propagates token exceptions.
	TryTransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error
}

// erc20ABIJSON is the minimal ERC-20 surface the engine touches.
const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// EVMBackend is a TokenBackend over an EVM JSON-RPC endpoint. Transfers are
// simulated with eth_call before being sent, so false-returning and reverting
// tokens are caught without spending gas.
type EVMBackend struct {
	client *ethclient.Client
	auth   *bind.TransactOpts
	erc20  abi.ABI
}

// NewEVMBackend creates an EVMBackend. auth signs the transferFrom
// transactions; its address must hold the allowances granted by clients.
func NewEVMBackend(client *ethclient.Client, auth *bind.TransactOpts) (*EVMBackend, error) {
	if client == nil || auth == nil {
		return nil, fmt.Errorf("%w: nil client or transactor", ErrInvalidConfig)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing erc20 abi: %w", err)
	}
	return &EVMBackend{client: client, auth: auth, erc20: parsed}, nil
}

// BalanceOf implements TokenBackend.
func (b *EVMBackend) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := b.view(ctx, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Allowance implements TokenBackend.
func (b *EVMBackend) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return b.view(ctx, token, "allowance", owner, spender)
}

// HasCode implements TokenBackend.
func (b *EVMBackend) HasCode(ctx context.Context, token common.Address) (bool, error) {
	code, err := b.client.CodeAt(ctx, token, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// TryTransferFrom implements TokenBackend.
func (b *EVMBackend) TryTransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	ok, err := b.HasCode(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: code probe: %v", ErrTransferFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: token %s has no code", ErrTransferFailed, token)
	}

	input, err := b.erc20.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("%w: packing call: %v", ErrTransferFailed, err)
	}

	// Simulate first: a revert or a false return surfaces here.
	ret, err := b.client.CallContract(ctx, ethereum.CallMsg{
		From: b.auth.From,
		To:   &token,
		Data: input,
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if len(ret) > 0 {
		vals, err := b.erc20.Unpack("transferFrom", ret)
		if err != nil {
			return fmt.Errorf("%w: decoding return: %v", ErrTransferFailed, err)
		}
		if success, ok := vals[0].(bool); ok && !success {
			return fmt.Errorf("%w: token returned false", ErrTransferFailed)
		}
	}

	bound := bind.NewBoundContract(token, b.erc20, b.client, b.client, b.client)
	tx, err := bound.Transact(b.auth, "transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	receipt, err := bind.WaitMined(ctx, b.client, tx)
	if err != nil {
		return fmt.Errorf("%w: waiting for receipt: %v", ErrTransferFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted", ErrTransferFailed, tx.Hash())
	}
	return nil
}

func (b *EVMBackend) view(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	input, err := b.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	ret, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s call: %v", ErrInvalidToken, method, err)
	}
	vals, err := b.erc20.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidToken, method, err)
	}
	out, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s return type", ErrInvalidToken, method)
	}
	return out, nil
}
