/*

The ledger holds every token balance the vault touches: the underlying token, venue receipt tokens,
borrowed tokens and the vault's own share token. All writes are journaled so a composite operation
can take a snapshot up front and revert to it on any failure, leaving no partial effect behind.

*/

package ledger

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidSnapshot     = errors.New("snapshot does not exist")
)

type journalEntry interface {
	revert(s *State)
}

type balanceChange struct {
	token   common.Address
	account common.Address
	prev    sdkmath.Int
}

func (c balanceChange) revert(s *State) {
	if c.prev.IsZero() {
		delete(s.balances[c.token], c.account)
		return
	}
	s.balances[c.token][c.account] = c.prev
}

type supplyChange struct {
	token common.Address
	prev  sdkmath.Int
}

func (c supplyChange) revert(s *State) {
	if c.prev.IsZero() {
		delete(s.supplies, c.token)
		return
	}
	s.supplies[c.token] = c.prev
}

type revision struct {
	id           int
	journalIndex int
}

// State is a journaled multi-token balance sheet.
//
// Snapshots cover the whole ledger, so a revert undoes every write made since the snapshot,
// whoever made it. Callers that run composite operations against a shared ledger hold
// LockOperation for the full check-snapshot-commit sequence.
type State struct {
	op sync.Mutex // held across one composite operation

	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]sdkmath.Int // token -> account -> amount
	supplies map[common.Address]sdkmath.Int

	journal        []journalEntry
	validRevisions []revision
	nextRevisionID int
}

func NewState() *State {
	return &State{
		balances: make(map[common.Address]map[common.Address]sdkmath.Int),
		supplies: make(map[common.Address]sdkmath.Int),
	}
}

// BalanceOf returns account's balance of token.
func (s *State) BalanceOf(token, account common.Address) sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceOf(token, account)
}

// TotalSupply returns the minted-minus-burned amount of token.
func (s *State) TotalSupply(token common.Address) sdkmath.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.supplies[token]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// Holders returns the accounts with a non-zero balance of token.
func (s *State) Holders(token common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.balances[token]))
	for a := range s.balances[token] {
		out = append(out, a)
	}
	return out
}

// Mint creates amount of token in to's balance.
func (s *State) Mint(token, to common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: mint %s", ErrInvalidAmount, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSupply(token, s.supply(token).Add(amount))
	s.setBalance(token, to, s.balanceOf(token, to).Add(amount))
	return nil
}

// Burn destroys amount of token from from's balance.
func (s *State) Burn(token, from common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: burn %s", ErrInvalidAmount, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balanceOf(token, from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, burning %s", ErrInsufficientBalance, from.Hex(), bal, token.Hex(), amount)
	}
	s.setBalance(token, from, bal.Sub(amount))
	s.setSupply(token, s.supply(token).Sub(amount))
	return nil
}

// Transfer moves amount of token between accounts.
func (s *State) Transfer(token, from, to common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: transfer %s", ErrInvalidAmount, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balanceOf(token, from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, sending %s", ErrInsufficientBalance, from.Hex(), bal, token.Hex(), amount)
	}
	s.setBalance(token, from, bal.Sub(amount))
	s.setBalance(token, to, s.balanceOf(token, to).Add(amount))
	return nil
}

// LockOperation waits until no other composite operation runs on the ledger and claims it.
func (s *State) LockOperation() {
	s.op.Lock()
}

// UnlockOperation releases the ledger claimed by LockOperation.
func (s *State) UnlockOperation() {
	s.op.Unlock()
}

// Snapshot returns an identifier for the current state revision.
func (s *State) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id: id, journalIndex: len(s.journal)})
	return id
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
// Snapshots taken after it are invalidated.
func (s *State) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.revisionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	target := s.validRevisions[idx].journalIndex
	for i := len(s.journal) - 1; i >= target; i-- {
		s.journal[i].revert(s)
	}
	s.journal = s.journal[:target]
	s.validRevisions = s.validRevisions[:idx]
	return nil
}

// Commit discards the snapshot and every later one, keeping their changes.
// The journal is dropped once no snapshot remains.
func (s *State) Commit(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.revisionIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	s.validRevisions = s.validRevisions[:idx]
	if len(s.validRevisions) == 0 {
		s.journal = nil
	}
	return nil
}

func (s *State) revisionIndex(id int) int {
	for i := len(s.validRevisions) - 1; i >= 0; i-- {
		if s.validRevisions[i].id == id {
			return i
		}
	}
	return -1
}

// record journals a change while a snapshot is open.
func (s *State) record(e journalEntry) {
	if len(s.validRevisions) > 0 {
		s.journal = append(s.journal, e)
	}
}

func (s *State) balanceOf(token, account common.Address) sdkmath.Int {
	if v, ok := s.balances[token][account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (s *State) supply(token common.Address) sdkmath.Int {
	if v, ok := s.supplies[token]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (s *State) setBalance(token, account common.Address, v sdkmath.Int) {
	m, ok := s.balances[token]
	if !ok {
		m = make(map[common.Address]sdkmath.Int)
		s.balances[token] = m
	}
	s.record(balanceChange{token: token, account: account, prev: s.balanceOf(token, account)})
	if v.IsZero() {
		delete(m, account)
		return
	}
	m[account] = v
}

func (s *State) setSupply(token common.Address, v sdkmath.Int) {
	s.record(supplyChange{token: token, prev: s.supply(token)})
	if v.IsZero() {
		delete(s.supplies, token)
		return
	}
	s.supplies[token] = v
}
