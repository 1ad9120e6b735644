package domain

import "time"

type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RolePharmacist Role = "PHARMACIST"
	RoleAdmin      Role = "ADMIN"
)

type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Customer) IsStaff() bool {
	return c.Role == RolePharmacist || c.Role == RoleAdmin
}
