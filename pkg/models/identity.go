package models

import "time"

// Identity is a scanned account record. Client groups are keyed by the
// profile's user id, business groups by the business account id.
type Identity interface {
	AccountID() string
	CreatedAt() time.Time
}

type ClientProfile struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Phone       string    `db:"phone" json:"phone"`
	Birthday    string    `db:"birthday" json:"birthday"` // YYYY-MM-DD, empty when unknown
	Created     time.Time `db:"created_at" json:"created_at"`
	IsSuspended bool      `db:"is_suspended" json:"is_suspended"`
}

func (c ClientProfile) AccountID() string    { return c.UserID }
func (c ClientProfile) CreatedAt() time.Time { return c.Created }

func (c ClientProfile) DisplayName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type BusinessAccount struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	BusinessName string    `db:"business_name" json:"business_name"`
	Phone        string    `db:"phone" json:"phone"`
	Email        string    `db:"email" json:"email"`
	Created      time.Time `db:"created_at" json:"created_at"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	IsActive     bool      `db:"is_active" json:"is_active"`
}

func (b BusinessAccount) AccountID() string    { return b.ID }
func (b BusinessAccount) CreatedAt() time.Time { return b.Created }
