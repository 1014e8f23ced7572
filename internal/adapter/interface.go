package adapter

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Adapter translates generic deposit/withdraw/valuation requests into the operations of one venue.
// Implementations plan operations against live balances; they never move funds themselves.
type Adapter interface {
	// Name identifies the adapter in logs and in the pool registry.
	Name() string

	// DepositAll plans depositing the holder's entire balance of tokens into pool,
	// capped by the adapter's exposure limits. Any excess stays with the holder.
	DepositAll(holder common.Address, tokens []common.Address, pool common.Address) ([]types.Operation, error)

	// DepositSome plans depositing amounts[i] of tokens[i] into pool, capped by exposure limits.
	DepositSome(holder common.Address, tokens []common.Address, pool common.Address, amounts []sdkmath.Int) ([]types.Operation, error)

	// WithdrawAll plans redeeming the holder's entire position in pool for tokens.
	WithdrawAll(holder common.Address, tokens []common.Address, pool common.Address) ([]types.Operation, error)

	// WithdrawSome plans redeeming amount receipt tokens of pool for tokens.
	WithdrawSome(holder common.Address, tokens []common.Address, pool common.Address, amount sdkmath.Int) ([]types.Operation, error)

	// PositionBalance returns the holder's receipt-token amount in pool.
	PositionBalance(holder common.Address, token common.Address, pool common.Address) (sdkmath.Int, error)

	// PoolValue returns the total value held by pool, in units of token.
	PoolValue(pool common.Address, token common.Address) (sdkmath.Int, error)

	// AmountInToken converts receiptAmount of pool's receipt token into units of token.
	AmountInToken(token common.Address, pool common.Address, receiptAmount sdkmath.Int) (sdkmath.Int, error)

	// ReceiptToken returns the token a deposit into pool yields.
	ReceiptToken(pool common.Address) (common.Address, error)
}

// BorrowAdapter is implemented by venues that lend against collateral. A borrow step posts the
// holder's collateral into pool and borrows the step's output token against it.
type BorrowAdapter interface {
	Adapter

	// BorrowAll plans posting all collateral and borrowing the permitted amount of borrowToken.
	BorrowAll(holder common.Address, collateral common.Address, pool common.Address, borrowToken common.Address) ([]types.Operation, error)

	// RepayAll plans repaying the holder's whole debt in borrowToken and releasing all collateral.
	RepayAll(holder common.Address, collateral common.Address, pool common.Address, borrowToken common.Address) ([]types.Operation, error)

	// NetPositionValue values the holder's borrow position in collateral units:
	// collateral plus downstream (value held in borrowToken units) minus debt, floored at zero.
	NetPositionValue(holder common.Address, collateral common.Address, pool common.Address, downstream sdkmath.Int) (sdkmath.Int, error)
}

// Resolver returns the adapter bound to a pool.
type Resolver interface {
	AdapterOf(pool common.Address) (Adapter, bool)
}
