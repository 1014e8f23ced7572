/*

This file contains the types for the operations adapters emit and the calls the planner schedules.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// OperationKind defines the low-level operations a venue executes.
type OperationKind string

const (
	OperationDeposit  OperationKind = "DEPOSIT"  // Move Token into the pool, receive receipt tokens
	OperationWithdraw OperationKind = "WITHDRAW" // Burn Amount receipt tokens, receive Token
	OperationBorrow   OperationKind = "BORROW"   // Borrow Token against the holder's position in the pool
	OperationRepay    OperationKind = "REPAY"    // Repay Amount of Token borrowed from the pool
)

// Operation is a single, executable venue call produced by an adapter.
type Operation struct {
	Kind   OperationKind  `json:"kind"`
	Target common.Address `json:"target"` // Pool the operation is routed to
	Token  common.Address `json:"token"`  // For DEPOSIT/BORROW/REPAY: token moved; for WITHDRAW: token received
	Amount sdkmath.Int    `json:"amount"` // For WITHDRAW: receipt-token amount to burn
}

// AdapterCallKind defines the adapter capability a planned call invokes.
type AdapterCallKind string

const (
	CallDepositAll   AdapterCallKind = "DEPOSIT_ALL"
	CallWithdrawAll  AdapterCallKind = "WITHDRAW_ALL"
	CallWithdrawSome AdapterCallKind = "WITHDRAW_SOME" // Withdraw Numerator/Denominator of the position
	CallBorrowAll    AdapterCallKind = "BORROW_ALL"
	CallRepayAll     AdapterCallKind = "REPAY_ALL"
)

// AdapterCall is one entry of an entry or exit plan. Amounts are resolved against live balances
// when the call is executed, since each hop consumes what the previous hop produced.
type AdapterCall struct {
	Kind        AdapterCallKind `json:"kind"`
	StepIndex   int             `json:"step_index"`
	Pool        common.Address  `json:"pool"`
	InputToken  common.Address  `json:"input_token"`
	OutputToken common.Address  `json:"output_token"`
	Numerator   sdkmath.Int     `json:"numerator,omitempty"`   // CallWithdrawSome only
	Denominator sdkmath.Int     `json:"denominator,omitempty"` // CallWithdrawSome only
}

// CallReceipt records the outcome of an executed adapter call.
type CallReceipt struct {
	Call       AdapterCall `json:"call"`
	Operations []Operation `json:"operations"`
	Timestamp  time.Time   `json:"timestamp"`
}
