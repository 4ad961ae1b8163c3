package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/calendar"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/db"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/outbox"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

type RescheduleReason string

const (
	ReasonWeather             RescheduleReason = "WEATHER"
	ReasonTechnicalIssue      RescheduleReason = "TECHNICAL_ISSUE"
	ReasonResourceUnavailable RescheduleReason = "RESOURCE_UNAVAILABLE"
	ReasonTimeOverflow        RescheduleReason = "TIME_OVERFLOW"
	ReasonOther               RescheduleReason = "OTHER"
)

func (r RescheduleReason) Valid() bool {
	switch r {
	case ReasonWeather, ReasonTechnicalIssue, ReasonResourceUnavailable, ReasonTimeOverflow, ReasonOther:
		return true
	default:
		return false
	}
}

type RescheduleScope string

const (
	ScopeDay  RescheduleScope = "DAY"
	ScopeWeek RescheduleScope = "WEEK"
)

// window возвращает число дней охвата и сдвиг переноса.
func (s RescheduleScope) window() (days, shift int) {
	if s == ScopeWeek {
		return 7, 7
	}
	return 1, 1
}

type RescheduleRules struct {
	// nil — значение по умолчанию (1).
	PreserveLockedLevel  *int
	WeatherResistantOnly bool
}

type ActionKind string

const (
	ActionCancel ActionKind = "CANCEL"
	ActionCreate ActionKind = "CREATE"
)

// PlannedAction: шаг плана переноса. CREATE ссылается на заменяемый визит через ReplacesID.
type PlannedAction struct {
	Action        ActionKind         `json:"action"`
	AppointmentID *uuid.UUID         `json:"appointment_id,omitempty"`
	ReplacesID    *uuid.UUID         `json:"replaces_id,omitempty"`
	ProjectID     *uuid.UUID         `json:"project_id,omitempty"`
	CallRequestID *uuid.UUID         `json:"call_request_id,omitempty"`
	ResourceID    *uuid.UUID         `json:"resource_id,omitempty"`
	VisitType     model.VisitType    `json:"visit_type,omitempty"`
	WeatherClass  model.WeatherClass `json:"weather_class,omitempty"`
	StartsAt      *time.Time         `json:"starts_at,omitempty"`
	EndsAt        *time.Time         `json:"ends_at,omitempty"`
}

// planPayload: подписываемая часть плана.
type planPayload struct {
	RouteDate              string          `json:"route_date"`
	ResourceID             string          `json:"resource_id"`
	OriginalAppointmentIDs []string        `json:"original_appointment_ids"`
	SuggestedActions       []PlannedAction `json:"suggested_actions"`
}

type storedPlan struct {
	Plan             planPayload      `json:"plan"`
	Reason           RescheduleReason `json:"reason"`
	Scope            RescheduleScope  `json:"scope"`
	ExpectedVersions map[string]int   `json:"expected_versions"`
}

type PreviewRequest struct {
	RouteDate  time.Time
	ResourceID uuid.UUID
	Reason     RescheduleReason
	Scope      RescheduleScope
	Rules      RescheduleRules
	Actor      audit.Actor
}

type PreviewSummary struct {
	CancelCount            int `json:"cancel_count"`
	CreateCount            int `json:"create_count"`
	MovedCount             int `json:"moved_count"`
	SkippedLockedCount     int `json:"skipped_locked_count"`
	SkippedNoResourceCount int `json:"skipped_no_resource_count"`
	SkippedNoSlotCount     int `json:"skipped_no_slot_count"`
}

type PreviewResult struct {
	PreviewID              uuid.UUID        `json:"preview_id"`
	PreviewHash            string           `json:"preview_hash"`
	ExpiresAt              time.Time        `json:"preview_expires_at"`
	RouteDate              string           `json:"route_date"`
	ResourceID             uuid.UUID        `json:"resource_id"`
	Reason                 RescheduleReason `json:"reason"`
	Scope                  RescheduleScope  `json:"scope"`
	OriginalAppointmentIDs []uuid.UUID      `json:"original_appointment_ids"`
	ExpectedVersions       map[string]int   `json:"expected_versions"`
	SuggestedActions       []PlannedAction  `json:"suggested_actions"`
	Summary                PreviewSummary   `json:"summary"`
}

type ConfirmPlanRequest struct {
	PreviewID        uuid.UUID
	PreviewHash      string
	ExpectedVersions map[string]int
	Reason           RescheduleReason
	Comment          string
	NotifyWhatsApp   bool
	Actor            audit.Actor
}

type ConfirmPlanResult struct {
	NewAppointmentIDs     []uuid.UUID `json:"new_appointment_ids"`
	NotificationsEnqueued bool        `json:"notifications_enqueued"`
}

const templateAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"

// RescheduleService строит и применяет планы переноса визитов.
type RescheduleService struct {
	deps       Deps
	appts      *AppointmentService
	finder     *SlotFinder
	loc        *time.Location
	secret     []byte
	previewTTL time.Duration
}

func NewRescheduleService(deps Deps, appts *AppointmentService, finder *SlotFinder, cfg config.SchedulingConfig) *RescheduleService {
	ttl := cfg.PreviewTTLMinutes
	if ttl < 1 {
		ttl = 1
	}
	return &RescheduleService{
		deps:       deps.withDefaults(),
		appts:      appts,
		finder:     finder,
		loc:        cfg.Location(),
		secret:     []byte(cfg.PreviewSecret),
		previewTTL: time.Duration(ttl) * time.Minute,
	}
}

// hash — HMAC-SHA256 канонического JSON подписываемой части плана.
func (s *RescheduleService) hash(p planPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *RescheduleService) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if req.ResourceID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "resource_id is required")
	}
	if req.Reason == "" {
		req.Reason = ReasonOther
	}
	if !req.Reason.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown reason %q", req.Reason))
	}
	if req.Scope == "" {
		req.Scope = ScopeDay
	}
	if req.Scope != ScopeDay && req.Scope != ScopeWeek {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown scope %q", req.Scope))
	}
	preserve := model.LockLevelConfirmed
	if req.Rules.PreserveLockedLevel != nil {
		preserve = *req.Rules.PreserveLockedLevel
	}
	if preserve < model.LockLevelNone || preserve > model.LockLevelManual {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "preserve_locked_level must be within 0..3")
	}

	days, shift := req.Scope.window()
	scope := calendar.DayBounds(req.RouteDate.In(s.loc), s.loc, days)

	var out *PreviewResult
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		appts := repository.NewGormAppointmentRepository(tx)
		rows, err := appts.ListConfirmedStarting(ctx, &req.ResourceID, scope.Start, scope.End)
		if err != nil {
			return fmt.Errorf("list confirmed: %w", err)
		}
		if len(rows) == 0 {
			return apperr.NotFound(apperr.CodeNotFound, "no appointments for the selected day and resource")
		}

		b := &planBuilder{
			svc:      s,
			tx:       tx,
			repo:     appts,
			shift:    shift,
			weather:  req.Rules.WeatherResistantOnly,
			resource: req.ResourceID,
			planned:  map[uuid.UUID][]calendar.TimeRange{},
		}
		for _, a := range rows {
			if a.LockLevel >= preserve {
				b.summary.SkippedLockedCount++
				continue
			}
			if a.ProjectID == nil && a.CallRequestID == nil {
				continue
			}
			if err := b.plan(ctx, a); err != nil {
				return err
			}
		}
		if len(b.actions) == 0 {
			return apperr.Validation(apperr.CodeInvalidArgument, "nothing to reschedule for the selected day")
		}

		plan := planPayload{
			RouteDate:        scope.Start.Format(time.DateOnly),
			ResourceID:       req.ResourceID.String(),
			SuggestedActions: b.actions,
		}
		expected := make(map[string]int, len(b.accepted))
		originalIDs := make([]uuid.UUID, 0, len(b.accepted))
		for _, a := range b.accepted {
			plan.OriginalAppointmentIDs = append(plan.OriginalAppointmentIDs, a.ID.String())
			expected[a.ID.String()] = a.RowVersion
			originalIDs = append(originalIDs, a.ID)
		}

		sum, err := s.hash(plan)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(storedPlan{Plan: plan, Reason: req.Reason, Scope: req.Scope, ExpectedVersions: expected})
		if err != nil {
			return fmt.Errorf("marshal preview: %w", err)
		}

		now := s.deps.now()
		preview := &model.SchedulePreview{
			RouteDate:   routeDate(scope.Start, s.loc),
			ResourceID:  req.ResourceID,
			PreviewHash: sum,
			Payload:     datatypes.JSON(raw),
			ExpiresAt:   now.Add(s.previewTTL),
			CreatedBy:   req.Actor.ID,
		}
		if err := repository.NewGormSchedulePreviewRepository(tx).Create(ctx, preview); err != nil {
			return fmt.Errorf("save preview: %w", err)
		}

		b.summary.CancelCount = len(b.accepted)
		b.summary.CreateCount = len(b.accepted)
		out = &PreviewResult{
			PreviewID:              preview.ID,
			PreviewHash:            sum,
			ExpiresAt:              preview.ExpiresAt,
			RouteDate:              plan.RouteDate,
			ResourceID:             req.ResourceID,
			Reason:                 req.Reason,
			Scope:                  req.Scope,
			OriginalAppointmentIDs: originalIDs,
			ExpectedVersions:       expected,
			SuggestedActions:       b.actions,
			Summary:                b.summary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type planBuilder struct {
	svc      *RescheduleService
	tx       *gorm.DB
	repo     *repository.GormAppointmentRepository
	shift    int
	weather  bool
	resource uuid.UUID

	vacated  []uuid.UUID
	accepted []model.Appointment
	actions  []PlannedAction
	planned  map[uuid.UUID][]calendar.TimeRange
	summary  PreviewSummary
}

// free — окно свободно на ресурсе с учётом уже запланированных замен.
// Визиты, уже принятые в план, и текущий визит будут отменены и не считаются занятыми.
func (b *planBuilder) free(ctx context.Context, resourceID uuid.UUID, tr calendar.TimeRange) (bool, error) {
	if busy, _ := calendar.HasOverlap(tr, b.planned[resourceID], false); busy {
		return false, nil
	}
	taken, err := b.repo.HasOverlap(ctx, resourceID, tr.Start, tr.End, b.vacated...)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return !taken, nil
}

func (b *planBuilder) plan(ctx context.Context, a model.Appointment) error {
	target := calendar.TimeRange{Start: a.StartsAt, End: a.EndsAt}.Shift(b.shift, b.svc.loc).UTC()
	resourceID := b.resource

	b.vacated = append(b.vacated, a.ID)
	skip := func() error {
		b.vacated = b.vacated[:len(b.vacated)-1]
		return nil
	}

	if b.weather && a.WeatherClass == model.WeatherClassSensitive {
		users, err := repository.NewGormUserRepository(b.tx).ListWeatherResistant(ctx)
		if err != nil {
			return fmt.Errorf("list weather resistant: %w", err)
		}
		found := false
		for _, u := range users {
			ok, err := b.free(ctx, u.ID, target)
			if err != nil {
				return err
			}
			if ok {
				resourceID, found = u.ID, true
				break
			}
		}
		if !found {
			b.summary.SkippedNoResourceCount++
			return skip()
		}
	} else {
		ok, err := b.free(ctx, resourceID, target)
		if err != nil {
			return err
		}
		if !ok {
			next, err := b.nextFree(ctx, resourceID, target)
			if err != nil {
				return err
			}
			if next == nil {
				b.summary.SkippedNoSlotCount++
				return skip()
			}
			target = *next
			b.summary.MovedCount++
		}
	}

	b.planned[resourceID] = append(b.planned[resourceID], target)
	b.accepted = append(b.accepted, a)

	id := a.ID
	rid := resourceID
	start, end := target.Start, target.End
	b.actions = append(b.actions,
		PlannedAction{Action: ActionCancel, AppointmentID: &id},
		PlannedAction{
			Action:        ActionCreate,
			ReplacesID:    &id,
			ProjectID:     a.ProjectID,
			CallRequestID: a.CallRequestID,
			ResourceID:    &rid,
			VisitType:     a.VisitType,
			WeatherClass:  a.WeatherClass,
			StartsAt:      &start,
			EndsAt:        &end,
		},
	)
	return nil
}

// nextFree: ближайшее свободное окно Slot Finder'а после занятой цели.
func (b *planBuilder) nextFree(ctx context.Context, resourceID uuid.UUID, target calendar.TimeRange) (*calendar.TimeRange, error) {
	now := b.svc.deps.now()
	horizon := int(target.Start.Sub(now).Hours()/24) + b.svc.finder.horizonDays + 1
	notBefore := target.Start.Add(-time.Second)
	slots, err := b.svc.finder.FindAvailableSlots(ctx, b.tx, SlotQuery{
		ResourceID:  resourceID,
		Duration:    target.Duration(),
		Count:       50,
		HorizonDays: horizon,
		NotBefore:   &notBefore,
	})
	if err != nil {
		return nil, err
	}
	for _, sl := range slots {
		tr := sl.Range()
		if busy, _ := calendar.HasOverlap(tr, b.planned[resourceID], false); !busy {
			return &tr, nil
		}
	}
	return nil, nil
}

// Confirm применяет сохранённый план целиком или не применяет вовсе.
func (s *RescheduleService) Confirm(ctx context.Context, req ConfirmPlanRequest) (*ConfirmPlanResult, error) {
	if req.Reason == "" {
		req.Reason = ReasonOther
	}
	if !req.Reason.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown reason %q", req.Reason))
	}

	var out *ConfirmPlanResult
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		now := s.deps.now()
		previews := repository.NewGormSchedulePreviewRepository(tx)
		preview, err := previews.GetByID(ctx, req.PreviewID)
		if err != nil {
			return notFound(err, "schedule preview")
		}
		if preview.ConsumedAt != nil {
			return apperr.Conflict(apperr.CodePlanStale, "preview already used")
		}
		if !preview.ExpiresAt.After(now) {
			return apperr.Conflict(apperr.CodePlanStale, "preview expired")
		}

		var stored storedPlan
		if err := json.Unmarshal(preview.Payload, &stored); err != nil {
			return fmt.Errorf("decode preview: %w", err)
		}
		sum, err := s.hash(stored.Plan)
		if err != nil {
			return err
		}
		if !hmac.Equal([]byte(sum), []byte(preview.PreviewHash)) || !hmac.Equal([]byte(sum), []byte(req.PreviewHash)) {
			return apperr.Conflict(apperr.CodePlanStale, "preview hash mismatch")
		}

		originalIDs := make([]uuid.UUID, 0, len(stored.Plan.OriginalAppointmentIDs))
		for _, raw := range stored.Plan.OriginalAppointmentIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("preview original id %q: %w", raw, err)
			}
			originalIDs = append(originalIDs, id)
		}
		if len(originalIDs) == 0 {
			return apperr.Validation(apperr.CodeInvalidArgument, "preview has no appointments")
		}

		repo := repository.NewGormAppointmentRepository(tx)
		rows, err := repo.GetByIDs(ctx, originalIDs)
		if err != nil {
			return fmt.Errorf("load originals: %w", err)
		}
		if len(rows) != len(originalIDs) {
			return apperr.VersionConflict(entityAppointment)
		}
		for _, row := range rows {
			expected, ok := req.ExpectedVersions[row.ID.String()]
			if !ok {
				return apperr.Validation(apperr.CodeInvalidArgument, "missing expected version for "+row.ID.String())
			}
			if row.RowVersion != expected {
				return apperr.VersionConflict(entityAppointment)
			}
			if row.LockLevel >= model.LockLevelApproved && !req.Actor.IsAdmin() {
				return apperr.Forbidden(apperr.CodeForbiddenLockLevel, "only ADMIN may reschedule lock_level>=2 appointments")
			}
		}

		creates := make(map[uuid.UUID]PlannedAction)
		for _, act := range stored.Plan.SuggestedActions {
			if act.Action == ActionCreate && act.ReplacesID != nil {
				creates[*act.ReplacesID] = act
			}
		}

		cancelReason := "RESCHEDULE:" + string(req.Reason)
		newIDs := make([]uuid.UUID, 0, len(originalIDs))
		locks := make([]string, 0, len(creates))
		for _, act := range creates {
			if act.ResourceID != nil {
				locks = append(locks, "resource:"+act.ResourceID.String())
			}
		}
		if err := db.AdvisoryXactLock(ctx, tx, locks...); err != nil {
			return fmt.Errorf("lock resources: %w", err)
		}

		// Сначала отменяются все исходные визиты: замена может занять окно другого исходного.
		replacementIDs := make([]uuid.UUID, len(originalIDs))
		for i, id := range originalIDs {
			act, ok := creates[id]
			if !ok || act.ResourceID == nil || act.StartsAt == nil || act.EndsAt == nil {
				return apperr.Validation(apperr.CodeInvalidArgument, "preview has no replacement for "+id.String())
			}
			replacementIDs[i] = uuid.New()
			expected := req.ExpectedVersions[id.String()]
			if _, err := s.appts.cancelTx(ctx, tx, id, cancelParams{
				Reason:          cancelReason,
				ExpectedVersion: &expected,
				Actor:           req.Actor,
				SupersededBy:    &replacementIDs[i],
			}); err != nil {
				return err
			}
		}
		for i, id := range originalIDs {
			row, err := s.createReplacement(ctx, tx, replacementIDs[i], creates[id], req, now)
			if err != nil {
				return err
			}
			newIDs = append(newIDs, row.ID)
		}

		ok, err := previews.MarkConsumed(ctx, preview.ID, now)
		if err != nil {
			return fmt.Errorf("consume preview: %w", err)
		}
		if !ok {
			return apperr.Conflict(apperr.CodePlanStale, "preview already used")
		}

		if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityScheduleDay,
			EntityID:   s.appts.DayEntityID(stored.Plan.RouteDate, stored.Plan.ResourceID),
			Action:     model.ActionScheduleRescheduled,
			Old:        map[string]any{"original_appointment_ids": stored.Plan.OriginalAppointmentIDs},
			New:        map[string]any{"new_appointment_ids": newIDs},
			Actor:      req.Actor,
			Metadata: map[string]any{
				"reason":                string(req.Reason),
				"comment":               req.Comment,
				"reschedule_preview_id": preview.ID.String(),
				"route_date":            stored.Plan.RouteDate,
				"resource_id":           stored.Plan.ResourceID,
			},
		}); err != nil {
			return err
		}

		enqueued, err := s.notify(ctx, tx, newIDs, req.NotifyWhatsApp, now)
		if err != nil {
			return err
		}
		out = &ConfirmPlanResult{NewAppointmentIDs: newIDs, NotificationsEnqueued: enqueued}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RescheduleService) createReplacement(
	ctx context.Context,
	tx *gorm.DB,
	id uuid.UUID,
	act PlannedAction,
	req ConfirmPlanRequest,
	now time.Time,
) (*model.Appointment, error) {
	repo := repository.NewGormAppointmentRepository(tx)
	start, end := act.StartsAt.UTC(), act.EndsAt.UTC()
	if !end.After(start) {
		return nil, apperr.Validation(apperr.CodeInvalidWindow, "replacement window is invalid")
	}
	taken, err := repo.HasOverlap(ctx, *act.ResourceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if taken {
		return nil, apperr.Conflict(apperr.CodeSlotTaken, "replacement window is no longer available")
	}

	visitType := act.VisitType
	if visitType == "" {
		visitType = model.VisitTypePrimary
	}
	weather := act.WeatherClass
	if weather == "" {
		weather = model.WeatherClassAny
	}
	row := &model.Appointment{
		Base:          model.Base{ID: id},
		ResourceID:    *act.ResourceID,
		ProjectID:     act.ProjectID,
		CallRequestID: act.CallRequestID,
		VisitType:     visitType,
		StartsAt:      start,
		EndsAt:        end,
		RouteDate:     routeDate(start, s.loc),
		Status:        model.AppointmentStatusConfirmed,
		LockLevel:     model.LockLevelConfirmed,
		LockedAt:      &now,
		LockedBy:      req.Actor.ID,
		LockReason:    model.LockReasonReschedule,
		WeatherClass:  weather,
		Notes:         "RESCHEDULED",
		RowVersion:    1,
	}
	if err := repo.Create(ctx, row); err != nil {
		if isOverlapViolation(err) {
			return nil, apperr.Wrap(apperr.Conflict(apperr.CodeSlotTaken, "replacement window is no longer available"), err)
		}
		return nil, fmt.Errorf("insert replacement: %w", err)
	}

	if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
		EntityType: entityAppointment,
		EntityID:   row.ID,
		Action:     model.ActionAppointmentConfirmed,
		New:        row,
		Actor:      req.Actor,
		Metadata:   map[string]any{"reason": string(req.Reason), "replaces": act.ReplacesID},
	}); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *RescheduleService) notify(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, whatsapp bool, now time.Time) (bool, error) {
	appts := repository.NewGormAppointmentRepository(tx)
	leads := repository.NewGormCallRequestRepository(tx)
	enqueued := false

	for _, id := range ids {
		a, err := appts.GetByID(ctx, id)
		if err != nil {
			return false, fmt.Errorf("reload replacement: %w", err)
		}
		if a.CallRequestID == nil {
			continue
		}
		lead, err := leads.GetByID(ctx, *a.CallRequestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("load call request: %w", err)
		}

		body := rescheduledBody(a.StartsAt, s.loc)
		if lead.Email != "" {
			_, created, err := outbox.Enqueue(ctx, tx, outbox.Notification{
				EntityType:  entityAppointment,
				EntityID:    a.ID,
				TemplateKey: templateAppointmentRescheduled,
				Payload: outbox.EmailPayload{
					To:       lead.Email,
					Subject:  "Vizito laikas pakeistas",
					BodyText: body,
				},
			}, now)
			if err != nil {
				return false, err
			}
			enqueued = enqueued || created
		}
		if whatsapp && lead.Phone != "" {
			_, created, err := outbox.Enqueue(ctx, tx, outbox.Notification{
				EntityType:  entityAppointment,
				EntityID:    a.ID,
				TemplateKey: templateAppointmentRescheduled,
				Payload:     outbox.WhatsAppPayload{To: lead.Phone, Body: body},
			}, now)
			if err != nil {
				return false, err
			}
			enqueued = enqueued || created
		}
	}
	return enqueued, nil
}
