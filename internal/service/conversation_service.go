package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/db"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

const entityConversation = "conversation_lock"

type AcquireRequest struct {
	Channel        model.Channel
	ConversationID string
	IdentityKey    string
	VisitType      model.VisitType
	CallRequestID  *uuid.UUID
	ProjectID      *uuid.UUID
	// nil — кандидаты от SlotFinder на ресурсе по умолчанию.
	Proposer Proposer
	TTL      time.Duration
	Actor    audit.Actor
}

type AcquireResult struct {
	Appointment *model.Appointment
	IsNew       bool
	Lock        *model.ConversationLock
	// Визиты других разговоров той же личности, отменённые при перехвате.
	Superseded []uuid.UUID
}

// ConversationService держит не более одного живого удержания на разговор.
type ConversationService struct {
	deps    Deps
	appts   *AppointmentService
	finder  *SlotFinder
	holdTTL time.Duration
}

func NewConversationService(deps Deps, appts *AppointmentService, finder *SlotFinder, cfg config.SchedulingConfig) *ConversationService {
	ttl := time.Duration(cfg.HoldMinutes) * time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &ConversationService{
		deps:    deps.withDefaults(),
		appts:   appts,
		finder:  finder,
		holdTTL: ttl,
	}
}

// AcquireOrReprompt возвращает живое удержание разговора либо создаёт новое.
// Всё выполняется в одной транзакции под advisory-локами разговора и личности.
func (s *ConversationService) AcquireOrReprompt(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	if !req.Channel.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown channel %q", req.Channel))
	}
	if req.ConversationID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "conversation_id is required")
	}
	if req.VisitType == "" {
		req.VisitType = model.VisitTypePrimary
	}
	if req.TTL <= 0 {
		req.TTL = s.holdTTL
	}
	proposer := req.Proposer
	if proposer == nil {
		proposer = s.finder.Proposer(nil, 5)
	}

	var out *AcquireResult
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		keys := []string{conversationKey(req.Channel, req.ConversationID)}
		if req.IdentityKey != "" {
			keys = append(keys, "identity:"+req.IdentityKey)
		}
		if err := db.AdvisoryXactLock(ctx, tx, keys...); err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}

		now := s.deps.now()
		locks := repository.NewGormConversationLockRepository(tx)
		appts := repository.NewGormAppointmentRepository(tx)

		existing, err := locks.GetByConversation(ctx, req.Channel, req.ConversationID)
		switch {
		case err == nil:
			if existing.Live(now) {
				a, err := appts.GetByID(ctx, existing.AppointmentID)
				if err == nil && a.HoldLive(now) {
					observability.ConversationAcquire.WithLabelValues("reprompt").Inc()
					out = &AcquireResult{Appointment: a, Lock: existing}
					return nil
				}
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("load held appointment: %w", err)
				}
			}
			// Истёкший лок либо лок на уже не удерживаемый визит.
			if err := locks.Delete(ctx, existing.ID); err != nil {
				return fmt.Errorf("delete stale lock: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("load conversation lock: %w", err)
		}

		superseded, err := s.takeover(ctx, tx, req, now)
		if err != nil {
			return err
		}

		candidates, err := proposer.Propose(ctx, tx)
		if err != nil {
			return err
		}

		var held *model.Appointment
		for _, c := range candidates {
			a, err := s.appts.createHoldTx(ctx, tx, HoldRequest{
				ResourceID:    c.ResourceID,
				Start:         c.Start,
				End:           c.End,
				ProjectID:     req.ProjectID,
				CallRequestID: req.CallRequestID,
				VisitType:     req.VisitType,
				TTL:           req.TTL,
				Actor:         req.Actor,
			})
			if apperr.CodeOf(err) == apperr.CodeSlotTaken {
				continue
			}
			if err != nil {
				return err
			}
			held = a
			break
		}
		if held == nil {
			observability.ConversationAcquire.WithLabelValues("no_slots").Inc()
			return apperr.Conflict(apperr.CodeNoSlots, "no free slots available")
		}

		lock := &model.ConversationLock{
			Channel:        req.Channel,
			ConversationID: req.ConversationID,
			IdentityKey:    req.IdentityKey,
			AppointmentID:  held.ID,
			VisitType:      req.VisitType,
			HoldExpiresAt:  *held.HoldExpiresAt,
		}
		if err := locks.Create(ctx, lock); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Wrap(apperr.Conflict(apperr.CodeLockActive, "conversation already holds a slot"), err)
			}
			return fmt.Errorf("create conversation lock: %w", err)
		}

		observability.ConversationAcquire.WithLabelValues("new").Inc()
		out = &AcquireResult{Appointment: held, IsNew: true, Lock: lock, Superseded: superseded}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// takeover отменяет живые удержания той же личности в других разговорах.
func (s *ConversationService) takeover(ctx context.Context, tx *gorm.DB, req AcquireRequest, now time.Time) ([]uuid.UUID, error) {
	if req.IdentityKey == "" {
		return nil, nil
	}
	locks := repository.NewGormConversationLockRepository(tx)
	others, err := locks.ListLiveByIdentity(ctx, req.IdentityKey, now, req.Channel, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("list identity locks: %w", err)
	}

	var superseded []uuid.UUID
	for _, l := range others {
		_, err := s.appts.cancelTx(ctx, tx, l.AppointmentID, cancelParams{
			Reason: model.CancelReasonSuperseded,
			Actor:  req.Actor,
		})
		switch {
		case err == nil:
			superseded = append(superseded, l.AppointmentID)
		case apperr.CodeOf(err) == apperr.CodeInvalidTransition, apperr.IsNotFound(err):
			// визит уже отменён, остался только лок
		default:
			return nil, err
		}
		if err := locks.Delete(ctx, l.ID); err != nil {
			return nil, fmt.Errorf("delete superseded lock: %w", err)
		}
		if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityConversation,
			EntityID:   l.ID,
			Action:     model.ActionConversationTakeover,
			Old:        map[string]any{"channel": l.Channel, "conversation_id": l.ConversationID, "appointment_id": l.AppointmentID},
			New:        map[string]any{"channel": req.Channel, "conversation_id": req.ConversationID},
			Actor:      req.Actor,
		}); err != nil {
			return nil, err
		}
		logging.From(ctx).Info("conversation takeover",
			"identity_key", req.IdentityKey,
			"from_conversation", l.ConversationID,
			"to_conversation", req.ConversationID,
		)
	}
	return superseded, nil
}

// ConfirmConversation подтверждает удержание разговора (HOLD_CONFIRM).
func (s *ConversationService) ConfirmConversation(
	ctx context.Context,
	channel model.Channel,
	conversationID string,
	actor audit.Actor,
) (*model.Appointment, error) {
	var out *model.Appointment
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		if err := db.AdvisoryXactLock(ctx, tx, conversationKey(channel, conversationID)); err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		a, err := s.heldForConversation(ctx, tx, channel, conversationID)
		if err != nil {
			return err
		}
		confirmed, err := s.appts.confirmTx(ctx, tx, a.ID, a.RowVersion, ConfirmOptions{
			Actor:      actor,
			LockReason: model.LockReasonHoldConfirm,
		})
		if err != nil {
			return err
		}
		if a.CallRequestID != nil {
			if err := markCallRequest(ctx, tx, *a.CallRequestID, model.CallRequestStatusScheduled); err != nil {
				return err
			}
		}
		out = confirmed
		return nil
	})
	return out, err
}

// CancelConversation отменяет удержание разговора (HOLD_CANCELLED).
func (s *ConversationService) CancelConversation(
	ctx context.Context,
	channel model.Channel,
	conversationID string,
	actor audit.Actor,
) (*model.Appointment, error) {
	var out *model.Appointment
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		if err := db.AdvisoryXactLock(ctx, tx, conversationKey(channel, conversationID)); err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		a, err := s.heldForConversation(ctx, tx, channel, conversationID)
		if err != nil {
			return err
		}
		cancelled, err := s.appts.cancelTx(ctx, tx, a.ID, cancelParams{
			Reason:          model.CancelReasonHoldCancelled,
			ExpectedVersion: &a.RowVersion,
			Actor:           actor,
		})
		if err != nil {
			return err
		}
		out = cancelled
		return nil
	})
	return out, err
}

// ActiveHold возвращает живое удержание разговора, если оно есть.
func (s *ConversationService) ActiveHold(ctx context.Context, channel model.Channel, conversationID string) (*model.Appointment, error) {
	return s.heldForConversation(ctx, s.deps.DB, channel, conversationID)
}

func (s *ConversationService) heldForConversation(
	ctx context.Context,
	tx *gorm.DB,
	channel model.Channel,
	conversationID string,
) (*model.Appointment, error) {
	lock, err := repository.NewGormConversationLockRepository(tx).GetByConversation(ctx, channel, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(apperr.CodeNotFound, "conversation has no active hold")
		}
		return nil, fmt.Errorf("load conversation lock: %w", err)
	}
	a, err := repository.NewGormAppointmentRepository(tx).GetByID(ctx, lock.AppointmentID)
	if err != nil {
		return nil, notFound(err, entityAppointment)
	}
	if !a.HoldLive(s.deps.now()) {
		return nil, apperr.Conflict(apperr.CodeHoldExpired, "hold has expired")
	}
	return a, nil
}

func conversationKey(channel model.Channel, conversationID string) string {
	return "conv:" + string(channel) + ":" + conversationID
}

func markCallRequest(ctx context.Context, tx *gorm.DB, id uuid.UUID, status model.CallRequestStatus) error {
	err := tx.WithContext(ctx).
		Model(&model.CallRequest{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("update call request status: %w", err)
	}
	return nil
}
