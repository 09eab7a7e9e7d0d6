package models

import "time"

// User is a platform account. Tenancy is expressed through memberships.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	IsActive   bool `gorm:"not null" json:"is_active"`
	IsOperator bool `gorm:"not null" json:"is_operator"`

	// HasElevatedAccess is derived from active memberships by the role
	// reconciler. Nothing else writes it.
	HasElevatedAccess bool `gorm:"not null" json:"has_elevated_access"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// DisplayName returns the best human readable name for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}
