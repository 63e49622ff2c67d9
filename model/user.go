package model

// UserRef is the denormalized back-reference a role record keeps to its
// parent user. Cascade steps keep it in sync with the user's id and name.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoleRefs holds the optional role-record references on a user. An empty
// string means the user does not hold that role.
type RoleRefs struct {
	AdminID   string `json:"admin,omitempty"`
	AccountID string `json:"account,omitempty"`
}

// User is the primary managed entity.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	IsActive     string   `json:"isActive"`
	PasswordHash string   `json:"-"`
	Search       []string `json:"search,omitempty"`
	Roles        RoleRefs `json:"roles"`

	// Resolved display names for the role records, filled in by the
	// populate step for the response payload.
	AdminName   string `json:"adminName,omitempty"`
	AccountName string `json:"accountName,omitempty"`
}

// Admin is the elevated-role record referenced by User.Roles.AdminID.
type Admin struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	User UserRef `json:"user"`
}

// Account is the account-role record referenced by User.Roles.AccountID.
type Account struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	User UserRef `json:"user"`
}
