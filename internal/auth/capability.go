package auth

import "github.com/boxvault/boxvault/pkg/types"

// Operation is what a principal wants to do with a box.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// CanAccess is the single capability check the rest of the system
// consults. Predicates are evaluated in fixed precedence: staff
// override, then ownership, then visibility. A nil user is an
// anonymous principal.
func CanAccess(user *types.User, box *types.Box, op Operation) bool {
	if isStaff(user) {
		return true
	}
	if isOwner(user, box) {
		return true
	}
	if op == OpRead && visibilityAllows(box) {
		return true
	}
	return false
}

func isStaff(user *types.User) bool {
	return user != nil && user.IsStaff
}

func isOwner(user *types.User, box *types.Box) bool {
	return user != nil && user.ID == box.OwnerID
}

func visibilityAllows(box *types.Box) bool {
	return box.Visibility == types.VisibilityPublic
}
