package agreement

import (
	"github.com/ethereum/go-ethereum/common"
)

type Role int

const (
	RoleUnknown Role = iota
	RoleClient
	RoleFreelancer
	RoleObserver
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "Client"
	case RoleFreelancer:
		return "Freelancer"
	case RoleObserver:
		return "Observer"
	}
	return "Unknown"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ResolveRole classifies viewer against the parties of snapshot. Addresses are
// compared as bytes so hex casing never matters. Client is checked first.
func ResolveRole(viewer common.Address, snapshot *Snapshot) Role {
	if snapshot == nil || viewer == (common.Address{}) {
		return RoleUnknown
	}
	switch viewer {
	case snapshot.Client:
		return RoleClient
	case snapshot.Freelancer:
		return RoleFreelancer
	}
	return RoleObserver
}

// ResolveRoleHex is ResolveRole for a textual viewer address.
func ResolveRoleHex(viewer string, snapshot *Snapshot) (Role, error) {
	address, err := ParseAddress(viewer)
	if err != nil {
		return RoleUnknown, err
	}
	return ResolveRole(address, snapshot), nil
}

// CanPerform predicts whether role may issue action. The agreement enforces
// the same rule remotely.
func CanPerform(role Role, action Action) bool {
	switch action {
	case ActionConfirmWork, ActionReleasePayment:
		return role == RoleClient
	}
	return false
}
