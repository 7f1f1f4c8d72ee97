package duplicates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

var (
	ErrInvalidTransition = errors.New("duplicate group cannot move to the requested status")
	ErrInvalidStatus     = errors.New("unknown duplicate group status")
)

type GroupRepository interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.DuplicateGroup, error)
	Get(ctx context.Context, id string) (*models.DuplicateGroup, error)
	// UpdateStatus applies update only while the group is still in status from.
	UpdateStatus(ctx context.Context, id string, from models.GroupStatus, update models.StatusUpdate) error
}

// ReviewService exposes persisted groups to admins. Moving a group to merged
// records the decision only; account merging happens elsewhere.
type ReviewService struct {
	authorizer Authorizer
	groups     GroupRepository
	audit      AuditLogger
	logger     ectologger.Logger
	now        func() time.Time
}

func NewReviewService(authorizer Authorizer, groups GroupRepository, audit AuditLogger, logger ectologger.Logger) *ReviewService {
	return &ReviewService{
		authorizer: authorizer,
		groups:     groups,
		audit:      audit,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReviewService) List(ctx context.Context, actor models.Actor, filter models.GroupFilter) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.ReviewService.List")
	defer span.End()

	if err := s.authorizer.Require(ctx, actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.groups.List(ctx, filter)
}

func (s *ReviewService) Get(ctx context.Context, actor models.Actor, id string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.ReviewService.Get")
	defer span.End()

	if err := s.authorizer.Require(ctx, actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.groups.Get(ctx, id)
}

func (s *ReviewService) UpdateStatus(ctx context.Context, actor models.Actor, id string, status models.GroupStatus, notes string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.ReviewService.UpdateStatus")
	defer span.End()

	if err := s.authorizer.Require(ctx, actor, models.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	group, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := group.Status
	if !from.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, status)
	}

	update := models.StatusUpdate{
		Status:     status,
		ReviewerID: actor.UserID,
		Notes:      notes,
		ReviewedAt: s.now(),
	}
	if err := s.groups.UpdateStatus(ctx, id, from, update); err != nil {
		return nil, err
	}

	group.Status = status
	group.ReviewedAt = &update.ReviewedAt
	group.ReviewedBy = &update.ReviewerID
	if notes != "" {
		group.ReviewNotes = &notes
	}

	entry := &models.AuditLogEntry{
		ID:          uuid.New().String(),
		AdminUserID: actor.UserID,
		ActionType:  models.AuditDuplicateGroupStatus,
		Description: fmt.Sprintf("Duplicate group moved from %s to %s", from, status),
		TargetType:  "duplicate_account_group",
		TargetID:    id,
		Metadata: database.NewJSONB(map[string]any{
			"from":  from,
			"to":    status,
			"notes": notes,
		}),
		CreatedAt: update.ReviewedAt,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("group_id", id).Error("Failed to write group status audit entry")
	}

	return group, nil
}
