package model

// Role names as issued by the backend.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// User is the authenticated identity held by the session store.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanSetStatus reports whether the user may move an invoice to status.
// PENDING is open to any authenticated user; APPROVED and PAID need admin.
func (u *User) CanSetStatus(status Status) bool {
	if u == nil {
		return false
	}
	switch status {
	case StatusPending:
		return true
	case StatusApproved, StatusPaid:
		return u.HasRole(RoleAdmin)
	default:
		return false
	}
}
