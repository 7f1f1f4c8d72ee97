package duplicates

import (
	"context"
	"errors"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/auth"
	"github.com/joiedevivre/jasmine/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeAuthorizer struct {
	role  models.AdminRole
	calls int
}

func (a *fakeAuthorizer) Require(_ context.Context, actor models.Actor, role models.AdminRole) error {
	a.calls++
	if actor.UserID == "" {
		return auth.ErrUnauthenticated
	}
	if !a.role.Satisfies(role) {
		return auth.ErrForbidden
	}
	return nil
}

type fakeSource struct {
	clients    []models.ClientProfile
	businesses []models.BusinessAccount
	calls      int
}

func (s *fakeSource) ListClientProfiles(context.Context) ([]models.ClientProfile, error) {
	s.calls++
	return s.clients, nil
}

func (s *fakeSource) ListBusinessAccounts(context.Context) ([]models.BusinessAccount, error) {
	return s.businesses, nil
}

type fakeGroupStore struct {
	mu       sync.Mutex
	groups   []models.DuplicateGroup
	failWhen func(*models.DuplicateGroup) bool
}

func (s *fakeGroupStore) ListOpenMemberSets(context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]string
	for _, g := range s.groups {
		if g.Status.Open() {
			out = append(out, g.UserIDs)
		}
	}
	return out, nil
}

func (s *fakeGroupStore) Insert(_ context.Context, g *models.DuplicateGroup) error {
	if s.failWhen != nil && s.failWhen(g) {
		return errors.New("insert failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, *g)
	return nil
}

func (s *fakeGroupStore) List(_ context.Context, filter models.GroupFilter) ([]models.DuplicateGroup, error) {
	var out []models.DuplicateGroup
	for _, g := range s.groups {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *fakeGroupStore) Get(_ context.Context, id string) (*models.DuplicateGroup, error) {
	for i := range s.groups {
		if s.groups[i].ID == id {
			g := s.groups[i]
			return &g, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *fakeGroupStore) UpdateStatus(_ context.Context, id string, from models.GroupStatus, update models.StatusUpdate) error {
	for i := range s.groups {
		if s.groups[i].ID == id && s.groups[i].Status == from {
			s.groups[i].Status = update.Status
			return nil
		}
	}
	return errors.New("conflict")
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry
}

func (a *fakeAudit) Append(_ context.Context, e *models.AuditLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

// fakeCounter serves counts from a table keyed by account then count name.
type fakeCounter struct {
	counts map[string]map[string]int
	fail   map[string]bool // "account/count"
}

func (c *fakeCounter) CountDependents(_ context.Context, count, accountID string) (int, error) {
	if c.fail[accountID+"/"+count] {
		return 0, errors.New("statement timeout")
	}
	return c.counts[accountID][count], nil
}
