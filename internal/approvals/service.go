package approvals

import (
	"context"
	"sort"
	"sync"
	"time"

	"corporatepay-reconciliation/internal/metrics"
	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"
)

// ServiceOptions configures a Service. The zero value seeds DemoItems.
type ServiceOptions struct {
	Seed     []ApprovalItem
	Clock    func() time.Time
	Recorder metrics.Recorder
}

// Service applies the approval workflow on top of a Store
type Service struct {
	mu       sync.Mutex
	store    Store
	seed     []ApprovalItem
	seeded   bool
	now      func() time.Time
	recorder metrics.Recorder
	log      logger.Logger
}

// NewService creates a service over store
func NewService(store Store, opts *ServiceOptions) *Service {
	if opts == nil {
		opts = &ServiceOptions{}
	}

	s := &Service{
		store:    store,
		seed:     opts.Seed,
		now:      opts.Clock,
		recorder: opts.Recorder,
		log:      logger.GetGlobalLogger().WithComponent("approvals"),
	}
	if s.seed == nil {
		s.seed = DemoItems()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.recorder == nil {
		s.recorder = metrics.Noop{}
	}
	return s
}

// ensureSeeded fills an empty store with the seed items. It runs the check
// once per service; a failed attempt is retried on the next read.
func (s *Service) ensureSeeded(ctx context.Context) error {
	if s.seeded {
		return nil
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		for _, item := range s.seed {
			if err := s.store.Put(ctx, item.Clone()); err != nil {
				return err
			}
		}
		s.log.WithField("items", len(s.seed)).Info("Seeded empty approvals store")
	}

	s.seeded = true
	return nil
}

// GetByID returns one item
func (s *Service) GetByID(ctx context.Context, id string) (*ApprovalItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*ApprovalItem, error) {
	item, found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("approval", id)
	}
	return &item, nil
}

// List returns the items passing filter, oldest first
func (s *Service) List(ctx context.Context, filter Filter) ([]ApprovalItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]ApprovalItem, 0, len(all))
	for _, item := range all {
		if filter.Matches(item) {
			items = append(items, item)
		}
	}
	sortItems(items)
	return items, nil
}

// GetWorkflows returns the distinct workflow names in sorted order
func (s *Service) GetWorkflows(ctx context.Context) ([]string, error) {
	items, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var workflows []string
	for _, item := range items {
		if !seen[item.Workflow] {
			seen[item.Workflow] = true
			workflows = append(workflows, item.Workflow)
		}
	}
	sort.Strings(workflows)
	return workflows, nil
}

// UpdateStatus moves an item to status, appending one audit entry, and
// replaces the stored record
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, actor, comment string) (*ApprovalItem, error) {
	if !status.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidData, "status", status, nil).
			WithSuggestion("use one of Pending, Approved, Rejected, Escalated")
	}
	if actor == "" {
		actor = "system"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}

	item, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !item.Status.CanTransitionTo(status) {
		return nil, errors.ValidationError(errors.CodeInvalidTransition, "approval status", status, nil).
			WithContext("approval_id", id).
			WithContext("from", item.Status).
			WithSuggestion("approved and rejected items are final; pending items may be approved, rejected or escalated")
	}

	now := s.now()
	item.Audit = append(item.Audit, AuditEntry{
		At:      now,
		Actor:   actor,
		From:    item.Status,
		To:      status,
		Comment: comment,
	})
	from := item.Status
	item.Status = status
	item.UpdatedAt = now

	if err := s.store.Put(ctx, *item); err != nil {
		return nil, err
	}

	s.recorder.ApprovalStatusChanged(string(status))
	s.log.WithFields(logger.Fields{
		"approval_id": id,
		"from":        from,
		"to":          status,
		"actor":       actor,
	}).Info("Approval status updated")

	return item, nil
}
