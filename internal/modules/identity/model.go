// README: Caller identity resolved once at the request boundary.
package identity

type Role string

const (
	RoleCustomer  Role = "CUSTOMER"
	RoleDriver    Role = "DRIVER"
	RoleValidator Role = "VALIDATOR"
)

// Identity is the resolved caller: an email plus the customer or driver reference id.
type Identity struct {
	ReferenceID int64
	Email       string
	Role        Role
	Name        string
}

func (i Identity) IsZero() bool {
	return i.ReferenceID == 0 && i.Email == ""
}

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDriver, RoleValidator:
		return true
	}
	return false
}
