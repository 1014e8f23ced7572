/*

Role-based authorization. Every mutating registry and vault operation names the role it requires
and the caller address; the Authorizer decides.

*/

package access

import (
	"errors"
	"fmt"
	"sync"

	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Role identifies an authority.
type Role string

const (
	RoleOperator         Role = "operator"
	RoleRiskOperator     Role = "risk_operator"
	RoleStrategyOperator Role = "strategy_operator"
	RoleFinanceOperator  Role = "finance_operator"
	RoleGovernance       Role = "governance"
)

// AllRoles lists the known roles in a stable order.
var AllRoles = []Role{RoleOperator, RoleRiskOperator, RoleStrategyOperator, RoleFinanceOperator, RoleGovernance}

var (
	ErrUnauthorized = errors.Join(types.ErrAuthorization, errors.New("caller lacks required role"))
	ErrUnknownRole  = errors.Join(types.ErrConfiguration, errors.New("unknown role"))
)

// Authorizer is the role predicate consulted by every gated operation.
type Authorizer interface {
	IsAuthorized(role Role, caller common.Address) bool
}

// Require returns ErrUnauthorized unless caller holds role.
func Require(auth Authorizer, role Role, caller common.Address) error {
	if auth == nil || !auth.IsAuthorized(role, caller) {
		return fmt.Errorf("%w: %s required for %s", ErrUnauthorized, role, caller.Hex())
	}
	return nil
}

// ParseRole maps a role name to a Role.
func ParseRole(name string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// RoleTable is an in-memory Authorizer. Governance manages grants.
type RoleTable struct {
	mu      sync.RWMutex
	members map[Role]map[common.Address]bool
}

// NewRoleTable creates a table where governance is held by the given admins.
func NewRoleTable(governance ...common.Address) *RoleTable {
	t := &RoleTable{members: make(map[Role]map[common.Address]bool)}
	for _, g := range governance {
		t.set(RoleGovernance, g, true)
	}
	return t
}

func (t *RoleTable) IsAuthorized(role Role, caller common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.members[role][caller]
}

// Grant gives role to account. The caller must hold governance.
func (t *RoleTable) Grant(caller common.Address, role Role, account common.Address) error {
	if err := t.checkGrant(caller, role); err != nil {
		return err
	}
	t.set(role, account, true)
	return nil
}

// Revoke removes role from account. The caller must hold governance.
func (t *RoleTable) Revoke(caller common.Address, role Role, account common.Address) error {
	if err := t.checkGrant(caller, role); err != nil {
		return err
	}
	t.set(role, account, false)
	return nil
}

// Members returns the accounts holding role.
func (t *RoleTable) Members(role Role) []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []common.Address
	for a, ok := range t.members[role] {
		if ok {
			out = append(out, a)
		}
	}
	return out
}

func (t *RoleTable) checkGrant(caller common.Address, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	return Require(t, RoleGovernance, caller)
}

func (t *RoleTable) set(role Role, account common.Address, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.members[role]
	if !ok {
		m = make(map[common.Address]bool)
		t.members[role] = m
	}
	if on {
		m[account] = true
	} else {
		delete(m, account)
	}
}
