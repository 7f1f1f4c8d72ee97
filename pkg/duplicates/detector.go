// Package duplicates finds client and business accounts that likely belong to
// the same person or business and records them for admin review.
package duplicates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/joiedevivre/jasmine/pkg/matching"
	"github.com/joiedevivre/jasmine/pkg/metrics"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

type RecordSource interface {
	ListClientProfiles(ctx context.Context) ([]models.ClientProfile, error)
	ListBusinessAccounts(ctx context.Context) ([]models.BusinessAccount, error)
}

type GroupStore interface {
	// ListOpenMemberSets returns the account ids of every pending or reviewed group.
	ListOpenMemberSets(ctx context.Context) ([][]string, error)
	Insert(ctx context.Context, group *models.DuplicateGroup) error
}

type AuditLogger interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

type Authorizer interface {
	Require(ctx context.Context, actor models.Actor, role models.AdminRole) error
}

type ScanEmitter interface {
	EmitScanCompleted(ctx context.Context, actor models.Actor, summary models.ScanSummary) error
}

type Detector struct {
	authorizer Authorizer
	source     RecordSource
	groups     GroupStore
	audit      AuditLogger
	enricher   *Enricher
	locker     locking.Locker
	emitter    ScanEmitter
	options    matching.Options
	logger     ectologger.Logger
	now        func() time.Time
}

type DetectorDeps struct {
	Authorizer Authorizer
	Source     RecordSource
	Groups     GroupStore
	Audit      AuditLogger
	Enricher   *Enricher
	Locker     locking.Locker
	Emitter    ScanEmitter
	Options    matching.Options
	Logger     ectologger.Logger
}

func NewDetector(deps DetectorDeps) *Detector {
	locker := deps.Locker
	if locker == nil {
		locker = locking.Noop{}
	}
	return &Detector{
		authorizer: deps.Authorizer,
		source:     deps.Source,
		groups:     deps.Groups,
		audit:      deps.Audit,
		enricher:   deps.Enricher,
		locker:     locker,
		emitter:    deps.Emitter,
		options:    deps.Options,
		logger:     deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Scan groups every client and business account, then persists each group
// whose member set is not already open for review. Groups are never merged.
func (d *Detector) Scan(ctx context.Context, actor models.Actor) (models.ScanSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Detector.Scan")
	defer span.End()

	if err := d.authorizer.Require(ctx, actor, models.RoleSuperAdmin); err != nil {
		return models.ScanSummary{}, err
	}

	started := time.Now()
	var summary models.ScanSummary
	err := d.locker.WithLock(ctx, locking.DuplicateScanKey, func(ctx context.Context) error {
		var err error
		summary, err = d.scan(ctx, actor)
		return err
	})
	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		tracing.RecordError(span, err)
		return models.ScanSummary{}, err
	}
	metrics.ScansTotal.WithLabelValues("completed").Inc()

	tracing.SetAttributes(span, map[string]int{
		"scan.total_detected": summary.TotalDetected,
		"scan.new_inserted":   summary.NewInserted,
	})

	if d.emitter != nil {
		// best effort; the scan is already persisted
		_ = d.emitter.EmitScanCompleted(ctx, actor, summary)
	}
	return summary, nil
}

func (d *Detector) scan(ctx context.Context, actor models.Actor) (models.ScanSummary, error) {
	log := d.logger.WithContext(ctx).WithField("actor_id", actor.UserID)

	clients, err := d.source.ListClientProfiles(ctx)
	if err != nil {
		return models.ScanSummary{}, fmt.Errorf("failed to load client profiles: %w", err)
	}
	businesses, err := d.source.ListBusinessAccounts(ctx)
	if err != nil {
		return models.ScanSummary{}, fmt.Errorf("failed to load business accounts: %w", err)
	}

	clientGroups := d.clientGroups(ctx, matching.Group(clients, matching.ClientRules(d.options)))
	businessGroups := d.businessGroups(ctx, matching.Group(businesses, matching.BusinessRules(d.options)))
	detected := append(clientGroups, businessGroups...)

	summary := models.ScanSummary{
		TotalDetected:  len(detected),
		ClientGroups:   len(clientGroups),
		BusinessGroups: len(businessGroups),
	}

	openSets, err := d.groups.ListOpenMemberSets(ctx)
	if err != nil {
		return models.ScanSummary{}, fmt.Errorf("failed to load open duplicate groups: %w", err)
	}
	known := make(map[string]struct{}, len(openSets)+len(detected))
	for _, ids := range openSets {
		known[memberSetKey(ids)] = struct{}{}
	}

	for _, group := range detected {
		metrics.GroupsDetected.WithLabelValues(string(group.Type), strings.Join(group.MatchCriteria, "+")).Inc()

		key := memberSetKey(group.UserIDs)
		if _, exists := known[key]; exists {
			continue
		}

		if err := d.groups.Insert(ctx, group); err != nil {
			metrics.GroupInsertFailures.Inc()
			log.WithError(err).WithFields(map[string]any{
				"group_type": group.Type,
				"user_ids":   group.UserIDs,
			}).Error("Failed to insert duplicate group, skipping")
			continue
		}
		known[key] = struct{}{}
		summary.NewInserted++
		metrics.GroupsInserted.WithLabelValues(string(group.Type)).Inc()
	}

	entry := &models.AuditLogEntry{
		ID:          uuid.New().String(),
		AdminUserID: actor.UserID,
		ActionType:  models.AuditDuplicateScan,
		Description: fmt.Sprintf("Duplicate scan detected %d groups, %d new", summary.TotalDetected, summary.NewInserted),
		TargetType:  "duplicate_account_groups",
		Metadata: database.NewJSONB(map[string]any{
			"total_detected":  summary.TotalDetected,
			"new_inserted":    summary.NewInserted,
			"client_groups":   summary.ClientGroups,
			"business_groups": summary.BusinessGroups,
		}),
		CreatedAt: d.now(),
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to write duplicate scan audit entry")
	}

	log.WithFields(map[string]any{
		"total_detected":  summary.TotalDetected,
		"new_inserted":    summary.NewInserted,
		"client_groups":   summary.ClientGroups,
		"business_groups": summary.BusinessGroups,
	}).Info("Duplicate scan completed")

	return summary, nil
}

func (d *Detector) clientGroups(ctx context.Context, candidates []matching.Candidate[models.ClientProfile]) []*models.DuplicateGroup {
	out := make([]*models.DuplicateGroup, 0, len(candidates))
	for _, c := range candidates {
		snapshots := make([]models.AccountSnapshot, len(c.Records))
		for i, r := range c.Records {
			snapshots[i] = models.AccountSnapshot{
				AccountID:   r.AccountID(),
				DisplayName: r.DisplayName(),
				Phone:       r.Phone,
				CreatedAt:   r.Created,
				Inactive:    r.IsSuspended,
			}
		}
		d.enricher.Enrich(ctx, snapshots, ClientCounts)
		out = append(out, d.newGroup(models.GroupTypeClient, c.Criteria, c.Confidence, RankAccounts(snapshots, false)))
	}
	return out
}

func (d *Detector) businessGroups(ctx context.Context, candidates []matching.Candidate[models.BusinessAccount]) []*models.DuplicateGroup {
	out := make([]*models.DuplicateGroup, 0, len(candidates))
	for _, c := range candidates {
		snapshots := make([]models.AccountSnapshot, len(c.Records))
		for i, r := range c.Records {
			snapshots[i] = models.AccountSnapshot{
				AccountID:   r.AccountID(),
				DisplayName: r.BusinessName,
				Phone:       r.Phone,
				CreatedAt:   r.Created,
				IsVerified:  r.IsVerified,
				Inactive:    !r.IsActive,
			}
		}
		d.enricher.Enrich(ctx, snapshots, BusinessCounts)
		out = append(out, d.newGroup(models.GroupTypeBusiness, c.Criteria, c.Confidence, RankAccounts(snapshots, true)))
	}
	return out
}

func (d *Detector) newGroup(groupType models.GroupType, criteria []string, confidence models.Confidence, ranked []models.AccountSnapshot) *models.DuplicateGroup {
	ids := make([]string, len(ranked))
	for i, s := range ranked {
		ids[i] = s.AccountID
	}

	return &models.DuplicateGroup{
		ID:            uuid.New().String(),
		Type:          groupType,
		UserIDs:       ids,
		MatchCriteria: criteria,
		Confidence:    confidence,
		PrimaryUserID: ranked[0].AccountID,
		Metadata:      database.NewJSONB(models.GroupMetadata{Accounts: ranked}),
		Status:        models.GroupStatusPending,
		DetectedAt:    d.now(),
	}
}

// memberSetKey is order-independent so {a,b} and {b,a} compare equal.
func memberSetKey(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
