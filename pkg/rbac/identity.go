package rbac

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/storage"
)

// Identity expands principals into the users they contain
type Identity interface {
	ExpandGroupMembers(groupID uint64) ([]uint64, error)
}

// StoreIdentity reads user group membership from the store
type StoreIdentity struct {
	store storage.Store
}

// NewStoreIdentity creates an identity backed by store
func NewStoreIdentity(store storage.Store) *StoreIdentity {
	return &StoreIdentity{store: store}
}

// ExpandGroupMembers returns the user ids of a group
func (i *StoreIdentity) ExpandGroupMembers(groupID uint64) ([]uint64, error) {
	group, err := i.store.GetUserGroup(groupID)
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

const groupTag = "g"

// GroupPrincipal returns the principal id of a user group
func GroupPrincipal(groupID uint64) string {
	return groupTag + strconv.FormatUint(groupID, 10)
}

// ParseGroupPrincipal returns the group id of a group principal. Any other
// principal yields ErrUnsupportedPrincipal.
func ParseGroupPrincipal(principal string) (uint64, error) {
	rest, ok := strings.CutPrefix(principal, groupTag)
	if !ok {
		return 0, fmt.Errorf("%q: %w", principal, ErrUnsupportedPrincipal)
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", principal, ErrUnsupportedPrincipal)
	}
	return id, nil
}
