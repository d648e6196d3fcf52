package accounts

// RoleAdmin is the only role: an authenticated request may do everything.
const RoleAdmin = "admin"

// Account is the authenticated principal.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
