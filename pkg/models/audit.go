package models

import (
	"time"

	"github.com/joiedevivre/jasmine/pkg/database"
)

const (
	AuditDuplicateScan         = "duplicate_scan"
	AuditDuplicateGroupStatus  = "duplicate_group_status_changed"
	AuditBusinessCascadeDelete = "business_cascade_deleted"
	AuditBusinessCascadeFailed = "business_cascade_failed"
)

type AuditLogEntry struct {
	ID          string                         `db:"id" json:"id"`
	AdminUserID string                         `db:"admin_user_id" json:"admin_user_id"`
	ActionType  string                         `db:"action_type" json:"action_type"`
	Description string                         `db:"description" json:"description"`
	TargetType  string                         `db:"target_type" json:"target_type"`
	TargetID    string                         `db:"target_id" json:"target_id"`
	Metadata    database.JSONB[map[string]any] `db:"metadata" json:"metadata"`
	CreatedAt   time.Time                      `db:"created_at" json:"created_at"`
}

type AdminRole string

const (
	RoleAdmin      AdminRole = "admin"
	RoleSuperAdmin AdminRole = "super_admin"
)

// Satisfies reports whether a caller holding r may perform an action that
// requires required.
func (r AdminRole) Satisfies(required AdminRole) bool {
	switch required {
	case RoleAdmin:
		return r == RoleAdmin || r == RoleSuperAdmin
	case RoleSuperAdmin:
		return r == RoleSuperAdmin
	}
	return false
}

// Actor is the authenticated caller, passed explicitly to every operation.
type Actor struct {
	UserID string
	Email  string
}
