package activation

import (
	"context"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/domain/legacy"
	"customer-onboarding/internal/event"
	"customer-onboarding/internal/infrastructure/monitoring"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/semaphore"
)

const defaultSyncTimeout = 10 * time.Second

type StatusChangeRequest struct {
	CustomerID int64
	RoleType   customer.RoleType
	Target     customer.Status
	Actor      customer.Actor
}

type Result struct {
	Role        *customer.Role
	Identifiers identifier.Set
	CIF         string
	SagaID      uuid.UUID
	AckID       string
	State       RequestState
	Idempotent  bool
}

type RoleView struct {
	Role        *customer.Role
	Identifiers identifier.Set
	CIF         string
}

type CompensationSummary struct {
	Claimed     int
	Compensated int
	Superseded  int
	Failed      int
}

type Service interface {
	ChangeStatus(ctx context.Context, req StatusChangeRequest) (*Result, error)

	GetRole(ctx context.Context, customerID int64, roleType customer.RoleType) (*RoleView, error)

	GetLegacyRecord(ctx context.Context, customerID int64) (*legacy.MirrorRecord, error)

	// CompensateStale reverts the legacy row for journal entries that never
	// reached a terminal state and were last touched more than minAge ago.
	CompensateStale(ctx context.Context, minAge time.Duration, limit int) (CompensationSummary, error)
}

type Dependencies struct {
	Roles           customer.Repository
	Identifiers     identifier.Repository
	Sagas           SagaRepository
	CIF             *identifier.CIFAllocator
	Initials        *identifier.InitialAllocator
	VirtualAccounts *identifier.VirtualAccountAllocator
	Legacy          legacy.Syncer
	Publisher       event.EventPublisher
}

type Options struct {
	SyncTimeout          time.Duration
	// MaxConcurrentChanges bounds requests holding a role transaction. A
	// request can hold two pool connections at once, so keep it at or below
	// half the pool size. Zero means unbounded.
	MaxConcurrentChanges int
}

type service struct {
	roles       customer.Repository
	identifiers identifier.Repository
	sagas       SagaRepository
	cif         *identifier.CIFAllocator
	initials    *identifier.InitialAllocator
	vas         *identifier.VirtualAccountAllocator
	legacy      legacy.Syncer
	publisher   event.EventPublisher
	syncTimeout time.Duration
	slots       *semaphore.Weighted
	now         func() time.Time
	logger      *slog.Logger
}

func NewService(deps Dependencies, opts Options, logger *slog.Logger) Service {
	if deps.Roles == nil || deps.Identifiers == nil || deps.Sagas == nil {
		panic("activation repositories cannot be nil")
	}
	if deps.CIF == nil || deps.Initials == nil || deps.VirtualAccounts == nil {
		panic("activation allocators cannot be nil")
	}
	if deps.Legacy == nil {
		panic("legacy syncer cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to activation.NewService, using default stderr handler")
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = defaultSyncTimeout
	}
	var slots *semaphore.Weighted
	if opts.MaxConcurrentChanges > 0 {
		slots = semaphore.NewWeighted(int64(opts.MaxConcurrentChanges))
	}
	return &service{
		roles:       deps.Roles,
		identifiers: deps.Identifiers,
		sagas:       deps.Sagas,
		cif:         deps.CIF,
		initials:    deps.Initials,
		vas:         deps.VirtualAccounts,
		legacy:      deps.Legacy,
		publisher:   deps.Publisher,
		syncTimeout: opts.SyncTimeout,
		slots:       slots,
		now:         time.Now,
		logger:      logger.With("component", "ActivationService"),
	}
}

func (s *service) ChangeStatus(ctx context.Context, req StatusChangeRequest) (result *Result, err error) {
	logCtx := s.logger.With(
		slog.Int64("customerID", req.CustomerID),
		slog.String("roleType", req.RoleType.String()),
		slog.String("target", req.Target.String()),
	)
	defer func() {
		monitoring.RecordTransition(req.Target.String(), outcomeLabel(result, err))
	}()

	state := StateReceived
	logCtx.InfoContext(ctx, "Status change received", slog.String("actor", req.Actor.ID))

	if !req.Actor.IsBackoffice() {
		logCtx.WarnContext(ctx, "Status change rejected for non-backoffice principal", slog.String("actor", req.Actor.ID))
		return nil, customer.ErrNotBackoffice
	}
	if !req.RoleType.Valid() {
		return nil, apperrors.NewValidationError("roleType", fmt.Sprintf("unknown role type %d", req.RoleType))
	}
	if !req.Target.Valid() {
		return nil, apperrors.NewValidationError("targetStatus", fmt.Sprintf("unknown status %d", req.Target))
	}

	release, err := s.acquire(ctx)
	if err != nil {
		logCtx.WarnContext(ctx, "No status change slot available", slog.Any("error", err))
		return nil, err
	}
	defer release()

	tx, err := s.roles.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer s.roles.RollbackTx(ctx, tx)

	role, err := s.roles.FindRoleForUpdate(ctx, tx, req.CustomerID, req.RoleType)
	if err != nil {
		logCtx.WarnContext(ctx, "Failed to lock customer role", slog.Any("error", err))
		return nil, err
	}
	current, err := s.identifiers.FindSetInTx(ctx, tx, role.CustomerID, role.RoleType.Code())
	if err != nil {
		return nil, err
	}

	if req.Target == customer.StatusActive && role.Status == customer.StatusActive && current.CIF != nil {
		logCtx.InfoContext(ctx, "Role already active, returning existing identifiers")
		return &Result{
			Role:        role,
			Identifiers: current,
			CIF:         current.CIF.Format(s.cif.Width()),
			State:       StateCommitted,
			Idempotent:  true,
		}, nil
	}

	change, err := customer.Transition(role, req.Target, req.Actor, s.now())
	if err != nil {
		logCtx.WarnContext(ctx, "Status change refused", slog.String("from", role.Status.String()), slog.Any("error", err))
		return nil, err
	}
	state = StateValidated

	saga := s.newSaga(role, current, change)
	if err := s.sagas.Create(ctx, saga); err != nil {
		return nil, err
	}
	logCtx = logCtx.With(slog.String("sagaID", saga.ID.String()))
	if err := s.sagas.LockInTx(ctx, tx, saga.ID); err != nil {
		return nil, s.abort(ctx, tx, saga, err, false)
	}

	next, err := s.reserveIdentifiers(ctx, tx, role, change, current)
	if err != nil {
		logCtx.WarnContext(ctx, "Identifier reservation failed", slog.Any("error", err))
		return nil, s.abort(ctx, tx, saga, err, false)
	}
	if err := s.roles.UpdateRoleStatusInTx(ctx, tx, change); err != nil {
		return nil, s.abort(ctx, tx, saga, err, false)
	}
	state = StateIdentifiersReserved
	logCtx.DebugContext(ctx, "Status change advanced", slog.String("state", string(state)))

	updated := change.Apply(role)
	forward := legacy.Snapshot(updated, next, s.cif.Width(), s.vas.PrefixLength())
	forward.RequestID = saga.ID.String()

	ack, err := s.push(ctx, forward)
	if err != nil {
		logCtx.WarnContext(ctx, "Legacy synchronization failed", slog.Any("error", err))
		return nil, s.abort(ctx, tx, saga, err, legacy.IsAmbiguous(err))
	}
	state = StateLegacySynced
	logCtx.DebugContext(ctx, "Status change advanced", slog.String("state", string(state)), slog.String("ackID", ack.AckID))

	if err := s.sagas.CompleteInTx(ctx, tx, saga.ID, forward); err != nil {
		return nil, s.abort(ctx, tx, saga, err, true)
	}
	if err := s.roles.CommitTx(ctx, tx); err != nil {
		logCtx.ErrorContext(ctx, "Local commit failed after legacy write", slog.Any("error", err))
		return nil, s.abort(ctx, tx, saga, err, true)
	}
	state = StateCommitted

	result = &Result{
		Role:        updated,
		Identifiers: next,
		SagaID:      saga.ID,
		AckID:       ack.AckID,
		State:       state,
	}
	if next.CIF != nil {
		result.CIF = next.CIF.Format(s.cif.Width())
	}
	logCtx.InfoContext(ctx, "Status change committed", slog.String("from", change.From.String()), slog.String("cif", result.CIF))

	s.publishStatusChanged(ctx, change, result)
	return result, nil
}

func (s *service) newSaga(role *customer.Role, current identifier.Set, change *customer.PendingChange) *Saga {
	now := s.now()
	saga := &Saga{
		ID:           uuid.New(),
		CustomerID:   role.CustomerID,
		RoleType:     role.RoleType.Code(),
		TargetStatus: change.To.Code(),
		State:        StateValidated,
		Compensation: legacy.Snapshot(role, current, s.cif.Width(), s.vas.PrefixLength()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	saga.Compensation.RequestID = saga.ID.String()
	saga.Compensation.Compensation = true
	return saga
}

// reserveIdentifiers writes the identifiers the change needs inside tx and
// returns the resulting set. Existing identifiers are reused unchanged.
func (s *service) reserveIdentifiers(ctx context.Context, tx pgx.Tx, role *customer.Role, change *customer.PendingChange, current identifier.Set) (identifier.Set, error) {
	next := current.Clone()

	if change.ReleaseInitial && next.Initial != "" {
		if err := s.identifiers.ReleaseInitialInTx(ctx, tx, role.CustomerID); err != nil {
			return identifier.Set{}, err
		}
		next.Initial = ""
	}
	if !change.RequiresAllocation {
		return next, nil
	}

	if next.CIF == nil {
		cif, err := s.cif.Allocate(ctx, identifier.CIFRequest{
			RoleCode:     role.RoleType.Code(),
			CategoryCode: role.UserCategory.Code(),
			CityCode:     role.DomicileCityCode,
			RegisteredAt: role.RegisteredAt,
		})
		if err != nil {
			return identifier.Set{}, err
		}
		if err := s.identifiers.SaveCIFInTx(ctx, tx, role.CustomerID, cif, cif.Format(s.cif.Width())); err != nil {
			return identifier.Set{}, err
		}
		next.CIF = &cif
	}

	if next.Initial == "" && s.initials.Required(role.RoleType.Code(), role.UserCategory.Code()) {
		reserver := &txInitialReserver{repo: s.identifiers, tx: tx, customerID: role.CustomerID}
		initial, err := s.initials.Allocate(ctx, role.LegalName(), reserver)
		if err != nil {
			return identifier.Set{}, err
		}
		next.Initial = initial
	}

	if len(next.VirtualAccounts) == 0 {
		accounts := s.vas.Allocate(identifier.VirtualAccountRequest{
			RoleCode:   role.RoleType.Code(),
			CIF:        *next.CIF,
			HolderName: role.LegalName(),
		})
		if len(accounts) > 0 {
			if err := s.identifiers.SaveVirtualAccountsInTx(ctx, tx, role.CustomerID, role.RoleType.Code(), accounts); err != nil {
				return identifier.Set{}, err
			}
			next.VirtualAccounts = accounts
		}
	}

	return next, nil
}

// acquire takes a slot that is held for the lifetime of a role transaction.
func (s *service) acquire(ctx context.Context) (func(), error) {
	if s.slots == nil {
		return func() {}, nil
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBusy, err)
	}
	return func() { s.slots.Release(1) }, nil
}

func (s *service) push(ctx context.Context, cs legacy.ChangeSet) (legacy.Ack, error) {
	pushCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	ack, err := s.legacy.Push(pushCtx, cs)
	if err != nil {
		var se *legacy.SyncError
		if !errors.As(err, &se) {
			err = &legacy.SyncError{Reason: "legacy call failed", Ambiguous: true, Cause: err}
		}
		return legacy.Ack{}, err
	}
	return ack, nil
}

// abort undoes a request after the journal entry exists. The compensation
// push happens while the role row is still locked; a failed compensation
// leaves the journal entry pending for the sweeper.
func (s *service) abort(ctx context.Context, tx pgx.Tx, saga *Saga, cause error, compensate bool) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.syncTimeout)
	defer cancel()
	logCtx := s.logger.With(slog.String("sagaID", saga.ID.String()), slog.Int64("customerID", saga.CustomerID))

	if compensate {
		if _, err := s.push(cleanupCtx, saga.Compensation); err != nil {
			monitoring.RecordCompensation("request", "error")
			logCtx.ErrorContext(ctx, "Compensation push failed, leaving saga for sweeper", slog.Any("error", err))
			_ = s.roles.RollbackTx(cleanupCtx, tx)
			return cause
		}
		monitoring.RecordCompensation("request", "success")
		logCtx.InfoContext(ctx, "Legacy row reverted")
	}

	_ = s.roles.RollbackTx(cleanupCtx, tx)

	if err := s.sagas.MarkAborted(cleanupCtx, saga.ID, cause.Error(), compensate); err != nil {
		logCtx.ErrorContext(ctx, "Failed to mark saga aborted", slog.Any("error", err))
	}
	return cause
}

func (s *service) publishStatusChanged(ctx context.Context, change *customer.PendingChange, result *Result) {
	if s.publisher == nil {
		return
	}
	evt := event.StatusChangedEvent{
		CustomerID: change.CustomerID,
		RoleType:   change.RoleType.String(),
		OldStatus:  change.From.String(),
		NewStatus:  change.To.String(),
		CIF:        result.CIF,
		Initial:    result.Identifiers.Initial,
		ChangedBy:  change.ChangedBy,
		RequestID:  result.SagaID.String(),
		Timestamp:  change.ChangedAt,
	}
	if err := s.publisher.PublishStatusChanged(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish status changed event", slog.Int64("customerID", change.CustomerID), slog.Any("error", err))
	}
}

func (s *service) GetRole(ctx context.Context, customerID int64, roleType customer.RoleType) (*RoleView, error) {
	role, err := s.roles.FindRole(ctx, customerID, roleType)
	if err != nil {
		return nil, err
	}
	ids, err := s.identifiers.FindSet(ctx, customerID, roleType.Code())
	if err != nil {
		return nil, err
	}
	view := &RoleView{Role: role, Identifiers: ids}
	if ids.CIF != nil {
		view.CIF = ids.CIF.Format(s.cif.Width())
	}
	return view, nil
}

func (s *service) GetLegacyRecord(ctx context.Context, customerID int64) (*legacy.MirrorRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()
	return s.legacy.Fetch(fetchCtx, customerID)
}

func (s *service) CompensateStale(ctx context.Context, minAge time.Duration, limit int) (CompensationSummary, error) {
	var summary CompensationSummary
	cutoff := s.now().Add(-minAge)

	release, err := s.acquire(ctx)
	if err != nil {
		return summary, err
	}
	defer release()

	tx, err := s.roles.BeginTx(ctx)
	if err != nil {
		return summary, err
	}
	defer s.roles.RollbackTx(ctx, tx)

	sagas, err := s.sagas.ClaimStaleInTx(ctx, tx, cutoff, limit)
	if err != nil {
		return summary, err
	}
	summary.Claimed = len(sagas)

	for _, saga := range sagas {
		logCtx := s.logger.With(slog.String("sagaID", saga.ID.String()), slog.Int64("customerID", saga.CustomerID))

		superseded, err := s.lockAndCheckSuperseded(ctx, tx, saga)
		if err != nil {
			return summary, err
		}
		if superseded {
			if err := s.sagas.MarkAbortedInTx(ctx, tx, saga.ID, "superseded by a later request", false); err != nil {
				return summary, err
			}
			summary.Superseded++
			monitoring.RecordCompensation("sweeper", "superseded")
			continue
		}

		if _, err := s.push(ctx, saga.Compensation); err != nil {
			summary.Failed++
			monitoring.RecordCompensation("sweeper", "error")
			logCtx.WarnContext(ctx, "Compensation push failed, will retry", slog.Any("error", err))
			continue
		}
		if err := s.sagas.MarkAbortedInTx(ctx, tx, saga.ID, "compensated by sweeper", true); err != nil {
			return summary, err
		}
		summary.Compensated++
		monitoring.RecordCompensation("sweeper", "success")
		logCtx.InfoContext(ctx, "Stale saga compensated")
	}

	if err := s.roles.CommitTx(ctx, tx); err != nil {
		return summary, err
	}
	return summary, nil
}

// lockAndCheckSuperseded serializes with live requests on the same role and
// reports whether a later journal entry already rewrote the legacy row. A
// later entry that aborted without writing legacy leaves this saga's forward
// image in place, so it still needs compensating.
func (s *service) lockAndCheckSuperseded(ctx context.Context, tx pgx.Tx, saga *Saga) (bool, error) {
	if _, err := s.roles.FindRoleForUpdate(ctx, tx, saga.CustomerID, customer.RoleType(saga.RoleType)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return s.sagas.SupersededInTx(ctx, tx, saga)
}

type txInitialReserver struct {
	repo       identifier.Repository
	tx         pgx.Tx
	customerID int64
}

func (r *txInitialReserver) Reserve(ctx context.Context, candidate string) error {
	return r.repo.ReserveInitialInTx(ctx, r.tx, r.customerID, candidate)
}

func outcomeLabel(result *Result, err error) string {
	switch {
	case err == nil && result != nil && result.Idempotent:
		return "idempotent"
	case err == nil:
		return "committed"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrSyncFailure):
		return "sync_failure"
	case errors.Is(err, apperrors.ErrCounterUnavailable):
		return "counter_unavailable"
	case errors.Is(err, apperrors.ErrIdentifierExhausted):
		return "identifier_exhausted"
	case errors.Is(err, apperrors.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
