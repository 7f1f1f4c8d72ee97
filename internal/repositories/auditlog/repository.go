package auditlog

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

// Repository appends admin audit entries. Entries are never updated.
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

func (r *Repository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	ctx, span := tracing.StartSpan(ctx, "auditlog.Repository.Append")
	defer span.End()

	if entry.Metadata.Data == nil {
		entry.Metadata = database.NewJSONB(map[string]any{})
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("admin_audit_logs")
	ib.Cols("id", "admin_user_id", "action_type", "description", "target_type", "target_id", "metadata", "created_at")
	ib.Values(entry.ID, entry.AdminUserID, entry.ActionType, entry.Description, entry.TargetType, entry.TargetID, entry.Metadata, entry.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"id":          entry.ID,
			"action_type": entry.ActionType,
			"target_id":   entry.TargetID,
		}).Error("Failed to append audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write audit entry")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":          entry.ID,
		"action_type": entry.ActionType,
	}).Debug("Appended audit entry")
	return nil
}
