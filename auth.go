package payqueue

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// QueueOperatorRole is the role identifier gating manual queue execution and
// order cancellation.
var QueueOperatorRole = crypto.Keccak256Hash([]byte("QUEUE_OPERATOR_ROLE"))

// ModuleRegistry resolves whether an address is a module registered with the
// orchestrator. The orchestrator itself is external to this package; the
// processor only consumes this narrow check to gate ProcessPayments.
type ModuleRegistry interface {
	// IsModule reports whether addr is a live registered module.
	IsModule(addr common.Address) bool
}

// RoleAuthorizer resolves role membership for operator-gated operations.
// Callers are passed explicitly into each operation rather than read from
// ambient state, so implementations can be pure lookups.
type RoleAuthorizer interface {
	// HasRole reports whether account holds the given role.
	HasRole(role common.Hash, account common.Address) bool
}

// StaticModuleRegistry is a fixed-set ModuleRegistry backed by a map.
type StaticModuleRegistry map[common.Address]bool

// IsModule implements ModuleRegistry.
func (r StaticModuleRegistry) IsModule(addr common.Address) bool {
	return r[addr]
}

// StaticRoleAuthorizer is a fixed-grant RoleAuthorizer backed by a map of role
// to member accounts.
type StaticRoleAuthorizer map[common.Hash][]common.Address

// HasRole implements RoleAuthorizer.
func (r StaticRoleAuthorizer) HasRole(role common.Hash, account common.Address) bool {
	for _, member := range r[role] {
		if member == account {
			return true
		}
	}
	return false
}
