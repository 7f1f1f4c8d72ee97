package models

import (
	"time"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/lib/pq"
)

type GroupType string

const (
	GroupTypeClient   GroupType = "client"
	GroupTypeBusiness GroupType = "business"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type GroupStatus string

const (
	GroupStatusPending   GroupStatus = "pending"
	GroupStatusReviewed  GroupStatus = "reviewed"
	GroupStatusMerged    GroupStatus = "merged"
	GroupStatusDismissed GroupStatus = "dismissed"
)

var groupTransitions = map[GroupStatus][]GroupStatus{
	GroupStatusPending:  {GroupStatusReviewed, GroupStatusMerged, GroupStatusDismissed},
	GroupStatusReviewed: {GroupStatusMerged, GroupStatusDismissed},
}

// CanTransition reports whether a group in status s may move to next.
// merged and dismissed are terminal.
func (s GroupStatus) CanTransition(next GroupStatus) bool {
	for _, allowed := range groupTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open groups take part in duplicate suppression on later scans.
func (s GroupStatus) Open() bool {
	return s == GroupStatusPending || s == GroupStatusReviewed
}

func (s GroupStatus) Valid() bool {
	switch s {
	case GroupStatusPending, GroupStatusReviewed, GroupStatusMerged, GroupStatusDismissed:
		return true
	}
	return false
}

// Dependent count names used in account snapshots.
const (
	CountContacts      = "contacts"
	CountFundsCreated  = "funds_created"
	CountContributions = "contributions"
	CountPosts         = "posts"
	CountProducts      = "products"
	CountOrders        = "orders"
	CountFunds         = "funds"
)

// AccountSnapshot is what reviewers see for one member of a group.
type AccountSnapshot struct {
	AccountID    string         `json:"account_id"`
	DisplayName  string         `json:"display_name"`
	Phone        string         `json:"phone"`
	CreatedAt    time.Time      `json:"created_at"`
	IsVerified   bool           `json:"is_verified,omitempty"`
	Inactive     bool           `json:"inactive,omitempty"`
	Counts       map[string]int `json:"counts"`
	FailedCounts []string       `json:"failed_counts,omitempty"`
}

func (a AccountSnapshot) Total() int {
	total := 0
	for _, n := range a.Counts {
		total += n
	}
	return total
}

type GroupMetadata struct {
	Accounts []AccountSnapshot `json:"accounts"`
}

type DuplicateGroup struct {
	ID            string                        `db:"id" json:"id"`
	Type          GroupType                     `db:"detection_type" json:"type"`
	UserIDs       pq.StringArray                `db:"user_ids" json:"user_ids"`
	MatchCriteria pq.StringArray                `db:"match_criteria" json:"match_criteria"`
	Confidence    Confidence                    `db:"confidence" json:"confidence"`
	PrimaryUserID string                        `db:"primary_user_id" json:"primary_user_id"`
	Metadata      database.JSONB[GroupMetadata] `db:"metadata" json:"metadata"`
	Status        GroupStatus                   `db:"status" json:"status"`
	DetectedAt    time.Time                     `db:"detected_at" json:"detected_at"`
	ReviewedAt    *time.Time                    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy    *string                       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes   *string                       `db:"review_notes" json:"review_notes,omitempty"`
}

type GroupFilter struct {
	Status GroupStatus
	Type   GroupType
	Limit  int
	Offset int
}

type StatusUpdate struct {
	Status     GroupStatus
	ReviewerID string
	Notes      string
	ReviewedAt time.Time
}

type ScanSummary struct {
	TotalDetected  int `json:"total_detected"`
	NewInserted    int `json:"new_inserted"`
	ClientGroups   int `json:"client_groups"`
	BusinessGroups int `json:"business_groups"`
}
