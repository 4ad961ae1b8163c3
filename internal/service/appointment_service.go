package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/calendar"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/db"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

const (
	entityAppointment = "appointment"
	entityResource    = "resource"
	entityScheduleDay = "schedule_day"

	// SQLSTATE exclusion_violation: сработало ограничение appointments_no_overlap.
	pgExclusionViolation = "23P01"
)

// HoldRequest: параметры нового удержания.
type HoldRequest struct {
	ResourceID    uuid.UUID
	Start         time.Time
	End           time.Time
	ProjectID     *uuid.UUID
	CallRequestID *uuid.UUID
	VisitType     model.VisitType
	WeatherClass  model.WeatherClass
	TTL           time.Duration
	Notes         string
	Actor         audit.Actor
}

type ConfirmOptions struct {
	Actor      audit.Actor
	LockReason string
}

// ExpiryResult: итог одного прохода по просроченным удержаниям.
type ExpiryResult struct {
	Appointments int         `json:"appointments"`
	Locks        int64       `json:"locks"`
	IDs          []uuid.UUID `json:"ids,omitempty"`
}

type DailyApproveResult struct {
	RouteDate     string      `json:"route_date"`
	Approved      []uuid.UUID `json:"approved"`
	AlreadyLocked int         `json:"already_locked"`
}

// AppointmentService: машина состояний визита HELD → CONFIRMED → CANCELLED.
type AppointmentService struct {
	deps         Deps
	loc          *time.Location
	holdTTL      time.Duration
	dayNamespace uuid.UUID
}

func NewAppointmentService(deps Deps, cfg config.SchedulingConfig) *AppointmentService {
	ns, err := uuid.Parse(cfg.DayNamespace)
	if err != nil {
		ns = uuid.NameSpaceOID
	}
	ttl := time.Duration(cfg.HoldMinutes) * time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &AppointmentService{
		deps:         deps.withDefaults(),
		loc:          cfg.Location(),
		holdTTL:      ttl,
		dayNamespace: ns,
	}
}

func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, err := repository.NewGormAppointmentRepository(s.deps.DB).GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, entityAppointment)
	}
	return a, nil
}

func (s *AppointmentService) List(
	ctx context.Context,
	f repository.AppointmentFilter,
	page, pageSize int,
) (calendar.Page[model.Appointment], error) {
	page, limit, offset := calendar.PageParams(page, pageSize)
	items, total, err := repository.NewGormAppointmentRepository(s.deps.DB).List(ctx, f, limit, offset)
	if err != nil {
		return calendar.Page[model.Appointment]{}, fmt.Errorf("list appointments: %w", err)
	}
	return calendar.NewPage(items, page, limit, total), nil
}

// CreateHold создаёт HELD-визит в отдельной транзакции.
func (s *AppointmentService) CreateHold(ctx context.Context, req HoldRequest) (*model.Appointment, error) {
	var out *model.Appointment
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		a, err := s.createHoldTx(ctx, tx, req)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// createHoldTx: единственная точка вставки HELD-визита. Пересечение перепроверяется
// в транзакции вызывающего; на Postgres окно ресурса дополнительно держит advisory-лок
// и ограничение appointments_no_overlap.
func (s *AppointmentService) createHoldTx(ctx context.Context, tx *gorm.DB, req HoldRequest) (*model.Appointment, error) {
	window, err := calendar.NewTimeRange(req.Start, req.End)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidWindow, "ends_at must be after starts_at")
	}
	if req.ResourceID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "resource_id is required")
	}
	if req.ProjectID == nil && req.CallRequestID == nil {
		return nil, apperr.Validation(apperr.CodeMissingLink, "project_id or call_request_id is required")
	}
	if req.VisitType == "" {
		req.VisitType = model.VisitTypePrimary
	}
	if !req.VisitType.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown visit_type %q", req.VisitType))
	}
	if req.WeatherClass == "" {
		req.WeatherClass = model.WeatherClassAny
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	if ttl < time.Minute {
		ttl = time.Minute
	}

	resource, err := repository.NewGormUserRepository(tx).GetByID(ctx, req.ResourceID)
	if err != nil {
		return nil, notFound(err, entityResource)
	}
	if !resource.IsActive || !resource.Role.IsResource() {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "resource is not schedulable")
	}

	window = window.UTC()
	now := s.deps.now()
	expires := now.Add(ttl)

	if err := db.AdvisoryXactLock(ctx, tx, "resource:"+req.ResourceID.String()); err != nil {
		return nil, fmt.Errorf("lock resource: %w", err)
	}

	repo := repository.NewGormAppointmentRepository(tx)
	taken, err := repo.HasOverlap(ctx, req.ResourceID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if taken {
		observability.Holds.WithLabelValues("slot_taken").Inc()
		return nil, apperr.Conflict(apperr.CodeSlotTaken, "time window is no longer available")
	}

	a := &model.Appointment{
		ResourceID:    req.ResourceID,
		ProjectID:     req.ProjectID,
		CallRequestID: req.CallRequestID,
		VisitType:     req.VisitType,
		StartsAt:      window.Start,
		EndsAt:        window.End,
		RouteDate:     routeDate(window.Start, s.loc),
		Status:        model.AppointmentStatusHeld,
		HoldExpiresAt: &expires,
		WeatherClass:  req.WeatherClass,
		Notes:         req.Notes,
		RowVersion:    1,
	}

	// Точка сохранения: после отказа ограничения транзакция Postgres остаётся пригодной
	// для попытки следующего кандидата.
	if err := tx.SavePoint("create_hold").Error; err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}
	if err := repo.Create(ctx, a); err != nil {
		if isOverlapViolation(err) {
			if rbErr := tx.RollbackTo("create_hold").Error; rbErr != nil {
				return nil, fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			observability.Holds.WithLabelValues("slot_taken").Inc()
			return nil, apperr.Wrap(apperr.Conflict(apperr.CodeSlotTaken, "time window is no longer available"), err)
		}
		return nil, fmt.Errorf("insert hold: %w", err)
	}

	if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
		EntityType: entityAppointment,
		EntityID:   a.ID,
		Action:     model.ActionAppointmentHeld,
		New:        a,
		Actor:      req.Actor,
		Metadata:   map[string]any{"ttl_seconds": int(ttl.Seconds())},
	}); err != nil {
		return nil, err
	}

	observability.Holds.WithLabelValues("created").Inc()
	logging.From(ctx).Info("hold created",
		"appointment_id", a.ID,
		"resource_id", a.ResourceID,
		"starts_at", a.StartsAt,
		"hold_expires_at", expires,
	)
	return a, nil
}

func isOverlapViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

// Confirm переводит HELD → CONFIRMED при совпадении row_version.
func (s *AppointmentService) Confirm(ctx context.Context, id uuid.UUID, expectedVersion int, opts ConfirmOptions) (*model.Appointment, error) {
	var out *model.Appointment
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		a, err := s.confirmTx(ctx, tx, id, expectedVersion, opts)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *AppointmentService) confirmTx(
	ctx context.Context,
	tx *gorm.DB,
	id uuid.UUID,
	expectedVersion int,
	opts ConfirmOptions,
) (*model.Appointment, error) {
	repo := repository.NewGormAppointmentRepository(tx)
	a, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, entityAppointment)
	}
	if a.RowVersion != expectedVersion {
		return nil, apperr.VersionConflict(entityAppointment)
	}
	if a.Status != model.AppointmentStatusHeld {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition,
			fmt.Sprintf("cannot confirm appointment in status %s", a.Status))
	}
	now := s.deps.now()
	if !a.HoldLive(now) {
		return nil, apperr.Conflict(apperr.CodeHoldExpired, "hold has expired")
	}

	reason := opts.LockReason
	if reason == "" {
		reason = model.LockReasonAdminConfirm
	}
	level := a.LockLevel
	if level < model.LockLevelConfirmed {
		level = model.LockLevelConfirmed
	}

	old := *a
	ok, err := repo.CompareAndUpdate(ctx, a.ID, expectedVersion,
		[]model.AppointmentStatus{model.AppointmentStatusHeld},
		map[string]any{
			"status":          model.AppointmentStatusConfirmed,
			"hold_expires_at": nil,
			"lock_level":      level,
			"locked_at":       now,
			"locked_by":       opts.Actor.ID,
			"lock_reason":     reason,
		})
	if err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}
	if !ok {
		return nil, apperr.VersionConflict(entityAppointment)
	}

	if _, err := repository.NewGormConversationLockRepository(tx).DeleteByAppointment(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("release conversation lock: %w", err)
	}

	updated, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("reload appointment: %w", err)
	}
	if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
		EntityType: entityAppointment,
		EntityID:   a.ID,
		Action:     model.ActionAppointmentConfirmed,
		Old:        old,
		New:        updated,
		Actor:      opts.Actor,
		Metadata:   map[string]any{"lock_reason": reason},
	}); err != nil {
		return nil, err
	}

	observability.Transitions.WithLabelValues(string(model.AppointmentStatusConfirmed), reason).Inc()
	return updated, nil
}

// Cancel переводит HELD|CONFIRMED → CANCELLED. expectedVersion nil: без проверки версии.
func (s *AppointmentService) Cancel(
	ctx context.Context,
	id uuid.UUID,
	reason string,
	expectedVersion *int,
	actor audit.Actor,
) (*model.Appointment, error) {
	var out *model.Appointment
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		a, err := s.cancelTx(ctx, tx, id, cancelParams{Reason: reason, ExpectedVersion: expectedVersion, Actor: actor})
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

type cancelParams struct {
	Reason          string
	ExpectedVersion *int
	Actor           audit.Actor
	SupersededBy    *uuid.UUID
}

func (s *AppointmentService) cancelTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, p cancelParams) (*model.Appointment, error) {
	repo := repository.NewGormAppointmentRepository(tx)
	a, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, entityAppointment)
	}
	if p.ExpectedVersion != nil && a.RowVersion != *p.ExpectedVersion {
		return nil, apperr.VersionConflict(entityAppointment)
	}
	if !a.Status.CanTransitionTo(model.AppointmentStatusCancelled) {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition,
			fmt.Sprintf("cannot cancel appointment in status %s", a.Status))
	}
	if a.LockLevel >= model.LockLevelApproved && !p.Actor.IsAdmin() {
		return nil, apperr.Forbidden(apperr.CodeForbiddenLockLevel, "appointment is locked, admin required")
	}

	reason := p.Reason
	if reason == "" {
		reason = model.CancelReasonAdmin
	}
	now := s.deps.now()
	updates := map[string]any{
		"status":          model.AppointmentStatusCancelled,
		"hold_expires_at": nil,
		"cancelled_at":    now,
		"cancelled_by":    p.Actor.ID,
		"cancel_reason":   reason,
	}
	if p.SupersededBy != nil {
		updates["superseded_by_id"] = *p.SupersededBy
	}

	old := *a
	ok, err := repo.CompareAndUpdate(ctx, a.ID, a.RowVersion, model.OccupyingStatuses, updates)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	if !ok {
		return nil, apperr.VersionConflict(entityAppointment)
	}

	if _, err := repository.NewGormConversationLockRepository(tx).DeleteByAppointment(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("release conversation lock: %w", err)
	}

	updated, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("reload appointment: %w", err)
	}
	if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
		EntityType: entityAppointment,
		EntityID:   a.ID,
		Action:     model.ActionAppointmentCancelled,
		Old:        old,
		New:        updated,
		Actor:      p.Actor,
		Metadata:   map[string]any{"reason": reason},
	}); err != nil {
		return nil, err
	}

	observability.Transitions.WithLabelValues(string(model.AppointmentStatusCancelled), reason).Inc()
	return updated, nil
}

// ExpireStaleHolds отменяет просроченные удержания и чистит их локи в одной транзакции.
// Повторный вызов без новых данных ничего не меняет.
func (s *AppointmentService) ExpireStaleHolds(ctx context.Context, now time.Time) (ExpiryResult, error) {
	now = now.UTC()
	var res ExpiryResult
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		res = ExpiryResult{}
		ids, err := repository.NewGormAppointmentRepository(tx).ExpireHolds(ctx, now)
		if err != nil {
			return fmt.Errorf("expire holds: %w", err)
		}
		locks := repository.NewGormConversationLockRepository(tx)
		for _, id := range ids {
			n, err := locks.DeleteByAppointment(ctx, id)
			if err != nil {
				return fmt.Errorf("release lock for %s: %w", id, err)
			}
			res.Locks += n

			if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
				EntityType: entityAppointment,
				EntityID:   id,
				Action:     model.ActionAppointmentExpired,
				New:        map[string]any{"status": model.AppointmentStatusCancelled, "cancel_reason": model.CancelReasonHoldExpired},
				Actor:      audit.System(),
			}); err != nil {
				return err
			}
		}
		n, err := locks.DeleteExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("delete expired locks: %w", err)
		}
		res.Locks += n
		res.Appointments = len(ids)
		res.IDs = ids
		return nil
	})
	if err != nil {
		return ExpiryResult{}, err
	}

	observability.HoldsExpired.Add(float64(res.Appointments))
	if res.Appointments > 0 || res.Locks > 0 {
		logging.From(ctx).Info("stale holds expired", "appointments", res.Appointments, "locks", res.Locks)
	}
	return res, nil
}

// SweepTick: одна итерация фоновой очистки на текущий момент.
func (s *AppointmentService) SweepTick(ctx context.Context) error {
	_, err := s.ExpireStaleHolds(ctx, s.deps.now())
	return err
}

// DailyApprove поднимает подтверждённые визиты дня до lock_level 2.
func (s *AppointmentService) DailyApprove(
	ctx context.Context,
	date time.Time,
	resourceID *uuid.UUID,
	comment string,
	actor audit.Actor,
) (DailyApproveResult, error) {
	day := calendar.DayBounds(date, s.loc, 1)
	res := DailyApproveResult{RouteDate: day.Start.Format(time.DateOnly), Approved: []uuid.UUID{}}

	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		repo := repository.NewGormAppointmentRepository(tx)
		items, err := repo.ListConfirmedStarting(ctx, resourceID, day.Start, day.End)
		if err != nil {
			return fmt.Errorf("list confirmed: %w", err)
		}
		if len(items) == 0 {
			return apperr.NotFound(apperr.CodeNotFound, "no confirmed appointments for "+res.RouteDate)
		}

		now := s.deps.now()
		for _, a := range items {
			if a.LockLevel >= model.LockLevelApproved {
				res.AlreadyLocked++
				continue
			}
			ok, err := repo.CompareAndUpdate(ctx, a.ID, a.RowVersion,
				[]model.AppointmentStatus{model.AppointmentStatusConfirmed},
				map[string]any{
					"lock_level":  model.LockLevelApproved,
					"locked_at":   now,
					"locked_by":   actor.ID,
					"lock_reason": model.LockReasonDailyBatchApprove,
				})
			if err != nil {
				return fmt.Errorf("approve %s: %w", a.ID, err)
			}
			if !ok {
				return apperr.VersionConflict(entityAppointment)
			}
			if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
				EntityType: entityAppointment,
				EntityID:   a.ID,
				Action:     model.ActionAppointmentApproved,
				Old:        map[string]any{"lock_level": a.LockLevel},
				New:        map[string]any{"lock_level": model.LockLevelApproved},
				Actor:      actor,
				Metadata:   map[string]any{"comment": comment},
			}); err != nil {
				return err
			}
			res.Approved = append(res.Approved, a.ID)
		}

		scope := "ALL"
		if resourceID != nil {
			scope = resourceID.String()
		}
		return s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityScheduleDay,
			EntityID:   s.DayEntityID(res.RouteDate, scope),
			Action:     model.ActionScheduleDayApproved,
			New:        map[string]any{"approved": len(res.Approved), "already_locked": res.AlreadyLocked},
			Actor:      actor,
			Metadata:   map[string]any{"route_date": res.RouteDate, "resource": scope, "comment": comment},
		})
	})
	if err != nil {
		return DailyApproveResult{}, err
	}
	return res, nil
}

// DayEntityID: стабильный идентификатор дня расписания для журнала аудита.
func (s *AppointmentService) DayEntityID(routeDate, scope string) uuid.UUID {
	return uuid.NewSHA1(s.dayNamespace, []byte(routeDate+":"+scope))
}

func routeDate(t time.Time, loc *time.Location) datatypes.Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
