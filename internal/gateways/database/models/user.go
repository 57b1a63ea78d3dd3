package models

import (
	"time"

	"github.com/uptrace/bun"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                   string    `bun:"id,pk" json:"id"`
	DisplayName          string    `bun:"display_name,notnull" json:"displayName"`
	Email                string    `bun:"email,notnull,unique" json:"email"`
	PasswordHash         string    `bun:"password_hash" json:"-"`
	Provider             string    `bun:"provider,notnull,default:'password'" json:"provider"`
	PhoneNumber          string    `bun:"phone_number" json:"phoneNumber,omitempty"`
	PhotoURL             string    `bun:"photo_url" json:"photoURL,omitempty"`
	PhotoKey             string    `bun:"photo_key" json:"-"`
	IsVerified           bool      `bun:"is_verified,notnull,default:false" json:"isVerified"`
	IsPhoneNumberVisible bool      `bun:"is_phone_number_visible,notnull,default:false" json:"isPhoneNumberVisible"`
	Role                 UserRole  `bun:"role,notnull,default:'user'" json:"type"`
	CreatedAt            time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt            time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Public returns a copy safe to show to other users: the phone number is
// dropped unless the owner made it visible.
func (u *User) Public() *User {
	cp := *u
	cp.PasswordHash = ""
	if !cp.IsPhoneNumberVisible {
		cp.PhoneNumber = ""
	}
	return &cp
}
