package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/outbox"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

// Итоги автоответа на входящее письмо.
const (
	AutoReplyOfferSent   = "offer_sent"
	AutoReplyMissingData = "missing_data"
	AutoReplyNone        = "none"
)

var automatedSender = regexp.MustCompile(`(?i)(no-?reply|mailer-daemon|postmaster)`)

// InboundEmailInput: разобранное входящее письмо.
type InboundEmailInput struct {
	MessageID string
	Subject   string
	From      string
	Name      string
	// Поля анкеты, извлечённые из текста письма.
	Fields map[string]string
}

// isAutomatedSender: адрес служебного отправителя, на который не отвечают.
func isAutomatedSender(addr string) bool {
	local, _, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok {
		return true
	}
	return automatedSender.MatchString(local)
}

func parseAddress(raw string) (name, addr string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if a, err := mail.ParseAddress(raw); err == nil {
		return a.Name, strings.ToLower(a.Address)
	}
	return "", strings.ToLower(raw)
}

// RecordInboundEmail находит открытую заявку отправителя или создаёт новую
// и сохраняет заголовки ветки для ответа.
func (s *IntakeService) RecordInboundEmail(ctx context.Context, in InboundEmailInput) (*model.CallRequest, error) {
	name, from := parseAddress(in.From)
	if from == "" {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "from address is required")
	}
	if in.Name != "" {
		name = in.Name
	}

	var id uuid.UUID
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		repo := repository.NewGormCallRequestRepository(tx)
		cr, err := repo.FindOpenByContact(ctx, from, "")
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			cr = newCallRequest(CallRequestInput{Name: name, Email: from, Source: model.CallRequestSourceEmail})
			if err := repo.Create(ctx, cr); err != nil {
				return fmt.Errorf("create call request: %w", err)
			}
		default:
			return fmt.Errorf("find call request: %w", err)
		}
		id = cr.ID

		st := cr.State()
		st.LastInbound = &model.InboundEmail{MessageID: in.MessageID, Subject: in.Subject, From: from}
		for k, v := range in.Fields {
			v = strings.TrimSpace(v)
			if v == "" || st.Questionnaire.Field(k).Present() {
				continue
			}
			st.Questionnaire.Set(k, &model.AnswerField{Value: v, Source: "email", Confidence: 0.6})
		}
		if st.Workflow.Phase == model.PhaseQuestionnaire && st.Questionnaire.Complete(model.OfferKindInspection) {
			st.Workflow.Phase = model.PhaseQuestionnaireDone
		}
		return s.save(ctx, tx, cr, &st, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

// MaybeSendAutoReply отвечает на последнее входящее письмо заявки: отправляет оффер,
// если анкета полна, иначе просит недостающие данные. Повторы ограничены счётчиками.
func (s *IntakeService) MaybeSendAutoReply(ctx context.Context, id uuid.UUID) (string, error) {
	if !s.cfg.AutoReplyEnabled {
		return AutoReplyNone, nil
	}
	cr, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	st := cr.State()

	to := cr.Email
	if f := st.Questionnaire.Email; f.Present() {
		to = f.Value
	}
	if st.LastInbound != nil && st.LastInbound.From != "" {
		to = st.LastInbound.From
	}
	if to == "" || isAutomatedSender(to) {
		return AutoReplyNone, nil
	}

	if st.Questionnaire.Complete(model.OfferKindInspection) {
		return s.autoOffer(ctx, cr, st)
	}
	return s.autoMissingData(ctx, cr.ID, to)
}

func (s *IntakeService) autoOffer(ctx context.Context, cr *model.CallRequest, st model.IntakeState) (string, error) {
	if !s.cfg.AutoOfferEnabled || st.AutoReplies.Offer.Count >= 1 {
		return AutoReplyNone, nil
	}
	actor := audit.SystemEmail()
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		cr, st, err := s.load(ctx, tx, cr.ID, nil)
		if err != nil {
			return err
		}
		if st.AutoReplies.Offer.Count >= 1 {
			return errAlreadyReplied
		}
		if _, err := s.sendTx(ctx, tx, cr, &st, actor); err != nil {
			return err
		}
		now := s.deps.now()
		st.AutoReplies.Offer.Count++
		st.AutoReplies.Offer.LastSentAt = &now
		return s.save(ctx, tx, cr, &st, contactedStatus(cr))
	})
	switch {
	case err == nil:
		observability.Offers.WithLabelValues("auto_sent").Inc()
		return AutoReplyOfferSent, nil
	case errors.Is(err, errAlreadyReplied):
		return AutoReplyNone, nil
	case apperr.KindOf(err) != "":
		logOfferSkip(ctx, cr.ID, apperr.CodeOf(err), err)
		return AutoReplyNone, nil
	default:
		return "", err
	}
}

var errAlreadyReplied = errors.New("auto reply already sent")

func (s *IntakeService) autoMissingData(ctx context.Context, id uuid.UUID, to string) (string, error) {
	sent := false
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		cr, st, err := s.load(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		now := s.deps.now()
		counter := st.AutoReplies.MissingData
		if counter.Count >= s.cfg.MissingDataMax {
			return nil
		}
		if counter.LastSentAt != nil && now.Sub(*counter.LastSentAt) < s.cfg.MissingDataMinWait {
			return nil
		}
		missing := missingDataFields(&st.Questionnaire)
		if len(missing) == 0 {
			// Не хватает только полей, о которых автоответ не спрашивает.
			return nil
		}

		payload := missingDataReply(to, s.cfg.ReplyToEmail, missing, st.LastInbound)
		if _, _, err := outbox.Enqueue(ctx, tx, outbox.Notification{
			EntityType:  entityCallRequest,
			EntityID:    cr.ID,
			TemplateKey: templateAutoReplyMissing,
			Payload:     payload,
		}, now); err != nil {
			return err
		}

		st.AutoReplies.MissingData.Count++
		st.AutoReplies.MissingData.LastSentAt = &now
		if err := s.save(ctx, tx, cr, &st, nil); err != nil {
			return err
		}
		sent = true
		return s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityCallRequest,
			EntityID:   cr.ID,
			Action:     model.ActionAutoReplySent,
			New:        map[string]any{"kind": AutoReplyMissingData, "missing": missing, "count": st.AutoReplies.MissingData.Count},
			Actor:      audit.SystemEmail(),
		})
	})
	if err != nil {
		return "", err
	}
	if !sent {
		return AutoReplyNone, nil
	}
	observability.Offers.WithLabelValues("missing_data_reply").Inc()
	return AutoReplyMissingData, nil
}
