package access

import (
	"errors"
	"testing"

	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	gov   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestRoleTableGrantRevoke(t *testing.T) {
	table := NewRoleTable(gov)
	assert.True(t, table.IsAuthorized(RoleGovernance, gov))
	assert.False(t, table.IsAuthorized(RoleOperator, alice))

	require.NoError(t, table.Grant(gov, RoleOperator, alice))
	assert.True(t, table.IsAuthorized(RoleOperator, alice))
	assert.NoError(t, Require(table, RoleOperator, alice))
	assert.Equal(t, []common.Address{alice}, table.Members(RoleOperator))

	require.NoError(t, table.Revoke(gov, RoleOperator, alice))
	assert.False(t, table.IsAuthorized(RoleOperator, alice))
	assert.Empty(t, table.Members(RoleOperator))
}

func TestRoleTableRejectsNonGovernanceGrant(t *testing.T) {
	table := NewRoleTable(gov)

	err := table.Grant(alice, RoleOperator, alice)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, errors.Is(err, types.ErrAuthorization))
	assert.False(t, table.IsAuthorized(RoleOperator, alice))
}

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseRole("janitor")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestRequireNilAuthorizer(t *testing.T) {
	assert.ErrorIs(t, Require(nil, RoleGovernance, gov), types.ErrAuthorization)
}
