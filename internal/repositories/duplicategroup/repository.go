package duplicategroup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

const table = "duplicate_groups"

var columns = []string{
	"id",
	"detection_type",
	"user_ids",
	"match_criteria",
	"confidence",
	"primary_user_id",
	"metadata",
	"status",
	"detected_at",
	"reviewed_at",
	"reviewed_by",
	"review_notes",
}

const defaultListLimit = 100

// Repository persists duplicate groups. Scans only insert; reviews move the
// status forward with an optimistic check on the previous status.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListOpenMemberSets returns the account ids of every pending or reviewed group.
func (r *Repository) ListOpenMemberSets(ctx context.Context) ([][]string, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.ListOpenMemberSets")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("user_ids")
	sb.From(table)
	sb.Where(sb.In("status", models.GroupStatusPending, models.GroupStatusReviewed))

	query, args := sb.Build()
	var rows []pq.StringArray
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list open duplicate groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list open duplicate groups")
	}

	return ectolinq.Map(rows, func(ids pq.StringArray) []string {
		return []string(ids)
	}), nil
}

func (r *Repository) Insert(ctx context.Context, group *models.DuplicateGroup) error {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.Insert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   group.ID,
		"type": group.Type,
	})

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(
		group.ID,
		group.Type,
		group.UserIDs,
		group.MatchCriteria,
		group.Confidence,
		group.PrimaryUserID,
		group.Metadata,
		group.Status,
		group.DetectedAt,
		group.ReviewedAt,
		group.ReviewedBy,
		group.ReviewNotes,
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to insert duplicate group")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert duplicate group")
	}

	log.Debug("Inserted duplicate group")
	return nil
}

func (r *Repository) List(ctx context.Context, filter models.GroupFilter) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	var where []string
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	if filter.Type != "" {
		where = append(where, sb.Equal("detection_type", filter.Type))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	sb.OrderBy("detected_at DESC", "id ASC")
	sb.Limit(limit)
	sb.Offset(filter.Offset)

	query, args := sb.Build()
	var groups []models.DuplicateGroup
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &groups, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": filter.Status,
			"type":   filter.Type,
		}).Error("Failed to list duplicate groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate groups")
	}

	return groups, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var group models.DuplicateGroup
	if err := database.Conn(ctx, r.db).GetContext(ctx, &group, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate group %s not found", id))
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get duplicate group")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate group")
	}

	return &group, nil
}

// UpdateStatus applies update only while the group is still in status from.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from models.GroupStatus, update models.StatusUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.UpdateStatus")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   id,
		"from": from,
		"to":   update.Status,
	})

	var notes *string
	if update.Notes != "" {
		notes = &update.Notes
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", update.Status),
		ub.Assign("reviewed_at", update.ReviewedAt),
		ub.Assign("reviewed_by", update.ReviewerID),
		ub.Assign("review_notes", notes),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", from),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to update duplicate group status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update duplicate group status")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		log.WithError(err).Error("Failed to read affected rows")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update duplicate group status")
	}
	if affected == 0 {
		log.Warn("Duplicate group status changed concurrently")
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("duplicate group %s is no longer %s", id, from))
	}

	log.Info("Updated duplicate group status")
	return nil
}
