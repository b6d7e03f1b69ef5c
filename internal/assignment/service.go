package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/events"
	"github.com/fieldops/funnel/internal/funnel"
	"github.com/fieldops/funnel/internal/metrics"
	"github.com/fieldops/funnel/internal/store"
)

type Config struct {
	BroadcastTopN int
	OfferTTL      time.Duration
	ExpiryTick    time.Duration
}

// Service owns assignment decisions: it runs the funnel, creates
// assignments in one of the three modes, and drives the offer lifecycle.
type Service struct {
	store    store.Store
	catalog  catalog.Reader
	pipeline *funnel.Pipeline
	events   events.Client
	cfg      Config
	logger   *slog.Logger

	// Per-order locks serialize funnel re-runs for the same order so a
	// refusal and an expiry cannot both roll the offer forward. Entries
	// are refcounted and removed once the last holder releases.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*orderLock

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(s store.Store, cat catalog.Reader, pipeline *funnel.Pipeline, ev events.Client, cfg Config, logger *slog.Logger) *Service {
	if cfg.BroadcastTopN <= 0 {
		cfg.BroadcastTopN = 3
	}
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 30 * time.Minute
	}
	if cfg.ExpiryTick <= 0 {
		cfg.ExpiryTick = 30 * time.Second
	}
	return &Service{
		store:    s,
		catalog:  cat,
		pipeline: pipeline,
		events:   ev,
		cfg:      cfg,
		logger:   logger,
		locks:    make(map[uuid.UUID]*orderLock),
		stopCh:   make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.expiryLoop(ctx)
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// lockOrder acquires the lock for an order and returns the release
// function. The map entry is dropped when the last holder releases.
func (s *Service) lockOrder(orderID uuid.UUID) func() {
	s.locksMu.Lock()
	l, ok := s.locks[orderID]
	if !ok {
		l = &orderLock{}
		s.locks[orderID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, orderID)
		}
		s.locksMu.Unlock()
	}
}

// Candidates runs the full funnel for an order without creating anything.
func (s *Service) Candidates(ctx context.Context, orderID uuid.UUID) (*funnel.Outcome, error) {
	order, err := s.catalog.GetServiceOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("service order %s not found", orderID)
	}
	return s.runFunnel(ctx, order, funnel.Options{})
}

func (s *Service) runFunnel(ctx context.Context, order *catalog.ServiceOrder, opts funnel.Options) (*funnel.Outcome, error) {
	providers, err := s.catalog.ListActiveProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return s.pipeline.Run(ctx, order, providers, opts)
}

// CreateDirect assigns the order to one named provider, but only if that
// provider survives the eligibility stages for this order.
func (s *Service) CreateDirect(ctx context.Context, orderID, providerID uuid.UUID) (*store.Assignment, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.catalog.GetServiceOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("service order %s not found", orderID)
	}
	provider, err := s.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %s not found", providerID)
	}
	if provider.Status != catalog.ProviderActive {
		return nil, &IneligibleProviderError{ProviderID: providerID, Stage: "provider_status", Reason: string(provider.Status)}
	}

	// The caller already chose the provider, so only the eligibility
	// stages run, and only against that one provider. Scoring and its
	// configuration never enter the picture here.
	outcome, err := s.pipeline.Run(ctx, order, []*catalog.Provider{provider}, funnel.Options{EligibilityOnly: true})
	if err != nil {
		return nil, err
	}
	if len(outcome.Eligible) == 0 {
		stage, reason := excludedStage(outcome, providerID)
		return nil, &IneligibleProviderError{ProviderID: providerID, Stage: stage, Reason: reason}
	}

	a := &store.Assignment{
		ServiceOrderID: orderID,
		ProviderID:     providerID,
		TeamID:         outcome.Eligible[0].TeamID,
		Mode:           store.ModeDirect,
		Status:         store.StatusCreated,
		FunnelData:     outcome,
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	if err := s.store.AcceptAssignment(ctx, orderID, a.ID); err != nil {
		if errors.Is(err, store.ErrAcceptConflict) {
			metrics.AcceptConflicts.Inc()
			return nil, &ConcurrentAssignmentConflictError{OrderID: orderID, AssignmentID: a.ID}
		}
		return nil, err
	}
	metrics.AssignmentsCreated.WithLabelValues(string(store.ModeDirect)).Inc()

	a, err = s.store.GetAssignment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.publishAssignment(events.SubjectAssignmentCreated(a.ID.String()), a)
	s.publishAssignment(events.SubjectAssignmentAccepted(a.ID.String()), a)
	s.logger.Info("direct assignment accepted", "order_id", orderID, "provider_id", providerID, "assignment_id", a.ID)
	return a, nil
}

// excludedStage reads the stage and reason that dropped the provider
// out of an eligibility run from its audit log.
func excludedStage(outcome *funnel.Outcome, providerID uuid.UUID) (string, string) {
	for _, entry := range outcome.Log {
		for _, exc := range entry.Exclusions {
			if exc.ProviderID == providerID {
				return entry.Stage, exc.Reason
			}
		}
	}
	if n := len(outcome.Log); n > 0 {
		return outcome.Log[n-1].Stage, ""
	}
	return "", ""
}

// CreateOffer offers the order to the top-ranked candidate.
func (s *Service) CreateOffer(ctx context.Context, orderID uuid.UUID) (*store.Assignment, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()
	return s.offerNext(ctx, orderID, nil)
}

// CreateBroadcast offers the order to the top N candidates at once; the
// first to accept wins and the rest are cancelled.
func (s *Service) CreateBroadcast(ctx context.Context, orderID uuid.UUID) ([]*store.Assignment, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.catalog.GetServiceOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("service order %s not found", orderID)
	}

	outcome, err := s.runFunnel(ctx, order, funnel.Options{})
	if err != nil {
		return nil, err
	}
	if outcome.Terminal != "" || len(outcome.Ranked) == 0 {
		s.publishUnmatched(orderID, outcome)
		return nil, &NoEligibleProvidersError{OrderID: orderID, Log: outcome.Log}
	}

	n := s.cfg.BroadcastTopN
	if n > len(outcome.Ranked) {
		n = len(outcome.Ranked)
	}
	expiresAt := time.Now().UTC().Add(s.cfg.OfferTTL)

	var created []*store.Assignment
	for i := 0; i < n; i++ {
		rc := outcome.Ranked[i]
		a := &store.Assignment{
			ServiceOrderID: orderID,
			ProviderID:     rc.Provider.ID,
			TeamID:         rc.TeamID,
			Mode:           store.ModeBroadcast,
			Status:         store.StatusOffered,
			FunnelData:     outcome,
			OfferExpiresAt: &expiresAt,
		}
		if err := s.store.CreateAssignment(ctx, a); err != nil {
			return nil, err
		}
		metrics.AssignmentsCreated.WithLabelValues(string(store.ModeBroadcast)).Inc()
		s.publishAssignment(events.SubjectAssignmentOffered(a.ID.String()), a)
		created = append(created, a)
	}
	s.logger.Info("broadcast offers created", "order_id", orderID, "offers", len(created))
	return created, nil
}

// offerNext runs the funnel minus already-tried providers and offers the
// top survivor. Callers hold the order lock.
func (s *Service) offerNext(ctx context.Context, orderID uuid.UUID, exclude map[uuid.UUID]bool) (*store.Assignment, error) {
	order, err := s.catalog.GetServiceOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("service order %s not found", orderID)
	}

	outcome, err := s.runFunnel(ctx, order, funnel.Options{Exclude: exclude})
	if err != nil {
		return nil, err
	}
	if outcome.Terminal != "" || len(outcome.Ranked) == 0 {
		s.publishUnmatched(orderID, outcome)
		return nil, &NoEligibleProvidersError{OrderID: orderID, Log: outcome.Log}
	}

	rc := outcome.Ranked[0]
	expiresAt := time.Now().UTC().Add(s.cfg.OfferTTL)
	a := &store.Assignment{
		ServiceOrderID: orderID,
		ProviderID:     rc.Provider.ID,
		TeamID:         rc.TeamID,
		Mode:           store.ModeOffer,
		Status:         store.StatusOffered,
		FunnelData:     outcome,
		OfferExpiresAt: &expiresAt,
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	metrics.AssignmentsCreated.WithLabelValues(string(store.ModeOffer)).Inc()
	s.publishAssignment(events.SubjectAssignmentOffered(a.ID.String()), a)
	s.logger.Info("offer created", "order_id", orderID, "provider_id", rc.Provider.ID, "assignment_id", a.ID)
	return a, nil
}

// Accept resolves a provider's acceptance. On broadcast orders the store
// arbitrates the race; losers get ConcurrentAssignmentConflictError.
func (s *Service) Accept(ctx context.Context, assignmentID uuid.UUID) (*store.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}

	// Hold the order lock so the expiry sweep cannot expire this offer
	// between our status check and the store-level claim.
	unlock := s.lockOrder(a.ServiceOrderID)
	defer unlock()

	a, err = s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	if a.Status == store.StatusCancelled {
		// Cancelled means a sibling already won this order.
		metrics.AcceptConflicts.Inc()
		return nil, &ConcurrentAssignmentConflictError{OrderID: a.ServiceOrderID, AssignmentID: assignmentID}
	}
	if a.Status != store.StatusOffered {
		return nil, &InvalidTransitionError{AssignmentID: assignmentID, From: string(a.Status), Action: "accept"}
	}
	if a.OfferExpiresAt != nil && time.Now().UTC().After(*a.OfferExpiresAt) {
		return nil, &InvalidTransitionError{AssignmentID: assignmentID, From: string(store.StatusExpired), Action: "accept"}
	}

	if err := s.store.AcceptAssignment(ctx, a.ServiceOrderID, assignmentID); err != nil {
		if errors.Is(err, store.ErrAcceptConflict) {
			metrics.AcceptConflicts.Inc()
			return nil, &ConcurrentAssignmentConflictError{OrderID: a.ServiceOrderID, AssignmentID: assignmentID}
		}
		return nil, err
	}

	a, err = s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	s.publishAssignment(events.SubjectAssignmentAccepted(a.ID.String()), a)
	s.logger.Info("assignment accepted", "assignment_id", assignmentID, "order_id", a.ServiceOrderID, "provider_id", a.ProviderID)
	return a, nil
}

// Refuse records a provider's refusal. On single-offer orders the funnel
// re-runs without the refusing provider and the next candidate is offered;
// the returned assignment is that next offer, or nil when none exists.
func (s *Service) Refuse(ctx context.Context, assignmentID uuid.UUID) (*store.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}

	unlock := s.lockOrder(a.ServiceOrderID)
	defer unlock()

	// Re-read under the lock: an expiry or accept may have raced us here.
	a, err = s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	if a.Status != store.StatusOffered {
		return nil, &InvalidTransitionError{AssignmentID: assignmentID, From: string(a.Status), Action: "refuse"}
	}

	now := time.Now().UTC()
	if err := s.store.UpdateAssignmentStatus(ctx, assignmentID, store.StatusRefused, &now); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, &InvalidTransitionError{AssignmentID: assignmentID, From: string(a.Status), Action: "refuse"}
		}
		return nil, err
	}
	a.Status = store.StatusRefused
	a.DecidedAt = &now
	s.publishAssignment(events.SubjectAssignmentRefused(a.ID.String()), a)
	s.logger.Info("assignment refused", "assignment_id", assignmentID, "order_id", a.ServiceOrderID, "provider_id", a.ProviderID)

	if a.Mode != store.ModeOffer {
		return nil, nil
	}

	exclude, err := s.triedProviders(ctx, a.ServiceOrderID)
	if err != nil {
		return nil, err
	}
	next, err := s.offerNext(ctx, a.ServiceOrderID, exclude)
	var noneLeft *NoEligibleProvidersError
	if errors.As(err, &noneLeft) {
		return nil, err
	}
	return next, err
}

// triedProviders collects providers whose offers for this order already
// reached a dead end, so a re-run never offers them again.
func (s *Service) triedProviders(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]bool, error) {
	siblings, err := s.store.ListAssignmentsForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	exclude := make(map[uuid.UUID]bool)
	for _, sib := range siblings {
		switch sib.Status {
		case store.StatusRefused, store.StatusExpired, store.StatusCancelled:
			exclude[sib.ProviderID] = true
		}
	}
	return exclude, nil
}

// Transparency returns the frozen funnel snapshot stored on the assignment.
func (s *Service) Transparency(ctx context.Context, assignmentID uuid.UUID) (*funnel.Outcome, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	if a.FunnelData == nil {
		return nil, fmt.Errorf("assignment %s has no funnel snapshot", assignmentID)
	}
	return a.FunnelData, nil
}

func (s *Service) expiryLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ExpiryTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireOffers(ctx)
		}
	}
}

func (s *Service) expireOffers(ctx context.Context) {
	offered, err := s.store.ListOffered(ctx)
	if err != nil {
		s.logger.Error("failed to list offered assignments", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, a := range offered {
		if a.OfferExpiresAt == nil || now.Before(*a.OfferExpiresAt) {
			continue
		}

		unlock := s.lockOrder(a.ServiceOrderID)

		cur, err := s.store.GetAssignment(ctx, a.ID)
		if err != nil || cur == nil || cur.Status != store.StatusOffered {
			unlock()
			continue
		}
		if err := s.store.UpdateAssignmentStatus(ctx, a.ID, store.StatusExpired, &now); err != nil {
			// A stale status means the offer was decided after our
			// read; leave it alone.
			if !errors.Is(err, store.ErrStaleStatus) {
				s.logger.Error("failed to expire assignment", "assignment_id", a.ID, "error", err)
			}
			unlock()
			continue
		}
		cur.Status = store.StatusExpired
		cur.DecidedAt = &now
		s.publishAssignment(events.SubjectAssignmentExpired(cur.ID.String()), cur)
		s.logger.Info("offer expired", "assignment_id", a.ID, "order_id", a.ServiceOrderID, "provider_id", a.ProviderID)

		if cur.Mode == store.ModeOffer {
			exclude, err := s.triedProviders(ctx, cur.ServiceOrderID)
			if err == nil {
				if _, err := s.offerNext(ctx, cur.ServiceOrderID, exclude); err != nil {
					var noneLeft *NoEligibleProvidersError
					if !errors.As(err, &noneLeft) {
						s.logger.Error("failed to roll offer forward", "order_id", cur.ServiceOrderID, "error", err)
					}
				}
			}
		}
		unlock()
	}
}

func (s *Service) publishAssignment(subject string, a *store.Assignment) {
	if s.events == nil {
		return
	}
	ev := events.AssignmentEvent{
		AssignmentID:   a.ID.String(),
		ServiceOrderID: a.ServiceOrderID.String(),
		ProviderID:     a.ProviderID.String(),
		TeamID:         a.TeamID.String(),
		Mode:           string(a.Mode),
		Status:         string(a.Status),
		OfferExpiresAt: a.OfferExpiresAt,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.events.Publish(subject, ev); err != nil {
		s.logger.Warn("failed to publish assignment event", "subject", subject, "error", err)
	}
}

func (s *Service) publishUnmatched(orderID uuid.UUID, outcome *funnel.Outcome) {
	if s.events == nil {
		return
	}
	excluded := 0
	stage := ""
	for _, entry := range outcome.Log {
		excluded += len(entry.Exclusions)
		stage = entry.Stage
	}
	ev := events.OrderUnmatchedEvent{
		ServiceOrderID: orderID.String(),
		HaltedAtStage:  stage,
		Excluded:       excluded,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.events.Publish(events.SubjectOrderUnmatched(orderID.String()), ev); err != nil {
		s.logger.Warn("failed to publish unmatched event", "order_id", orderID, "error", err)
	}
}
