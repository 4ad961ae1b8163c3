package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/calendar"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
	"github.com/Leganyst/visit-scheduler/internal/outbox"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

const (
	OfferActionAccept = "accept"
	OfferActionReject = "reject"

	offerSlotCandidates = 5
	offerNotFoundMsg    = "offer not found or no longer valid"
	maxSuggestionLen    = 1000
)

// IntakePatch: изменения анкеты от оператора или разборщика писем.
type IntakePatch struct {
	Fields          map[string]string
	Source          string
	WhatsAppConsent *bool
	Notes           *string
}

type CallRequestInput struct {
	Name   string
	Phone  string
	Email  string
	Source model.CallRequestSource
}

// SendResult содержит сырой токен оффера; он возвращается один раз и нигде не хранится.
type SendResult struct {
	CallRequest *model.CallRequest
	Token       string
}

type OfferResponseResult struct {
	CallRequest *model.CallRequest
	Action      string
	Appointment *model.Appointment
	// Токен следующего оффера после отказа, если он отправлен.
	NextToken string
	NoSlots   bool
}

// OfferView: публичное представление оффера для страницы по ссылке из письма.
type OfferView struct {
	Kind          model.OfferKind `json:"kind"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Label         string          `json:"label"`
	HoldExpiresAt time.Time       `json:"hold_expires_at"`
	Address       string          `json:"address,omitempty"`
}

// IntakeService ведёт анкету заявки и офферы визита по email.
type IntakeService struct {
	deps          Deps
	appts         *AppointmentService
	finder        *SlotFinder
	cfg           config.IntakeConfig
	emailHold     time.Duration
	publicBaseURL string
	loc           *time.Location
}

func NewIntakeService(
	deps Deps,
	appts *AppointmentService,
	finder *SlotFinder,
	cfg config.IntakeConfig,
	sched config.SchedulingConfig,
	publicBaseURL string,
) *IntakeService {
	hold := time.Duration(sched.EmailHoldMinutes) * time.Minute
	if hold < time.Minute {
		hold = time.Minute
	}
	return &IntakeService{
		deps:          deps.withDefaults(),
		appts:         appts,
		finder:        finder,
		cfg:           cfg,
		emailHold:     hold,
		publicBaseURL: publicBaseURL,
		loc:           sched.Location(),
	}
}

func (s *IntakeService) Get(ctx context.Context, id uuid.UUID) (*model.CallRequest, error) {
	cr, err := repository.NewGormCallRequestRepository(s.deps.DB).GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, entityCallRequest)
	}
	return cr, nil
}

func (s *IntakeService) CreateCallRequest(ctx context.Context, in CallRequestInput) (*model.CallRequest, error) {
	if strings.TrimSpace(in.Email) == "" && strings.TrimSpace(in.Phone) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "email or phone is required")
	}
	if in.Source == "" {
		in.Source = model.CallRequestSourceAdmin
	}
	cr := newCallRequest(in)
	if err := repository.NewGormCallRequestRepository(s.deps.DB).Create(ctx, cr); err != nil {
		return nil, fmt.Errorf("create call request: %w", err)
	}
	return cr, nil
}

func newCallRequest(in CallRequestInput) *model.CallRequest {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	phone := repository.NormalizePhone(in.Phone)

	var st model.IntakeState
	st.Normalize()
	if email != "" {
		st.Questionnaire.Email = &model.AnswerField{Value: email, Source: string(in.Source), Confidence: 1}
	}
	if phone != "" {
		st.Questionnaire.Phone = &model.AnswerField{Value: phone, Source: string(in.Source), Confidence: 1}
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		st.Questionnaire.ClientName = &model.AnswerField{Value: name, Source: string(in.Source), Confidence: 1}
	}

	cr := &model.CallRequest{
		Name:   strings.TrimSpace(in.Name),
		Phone:  phone,
		Email:  email,
		Source: in.Source,
		Status: model.CallRequestStatusNew,
	}
	cr.IntakeState = datatypes.NewJSONType(st)
	return cr
}

// load читает заявку в транзакции и сверяет ожидаемую версию документа.
func (s *IntakeService) load(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected *int) (*model.CallRequest, model.IntakeState, error) {
	cr, err := repository.NewGormCallRequestRepository(tx).GetByID(ctx, id)
	if err != nil {
		return nil, model.IntakeState{}, notFound(err, entityCallRequest)
	}
	st := cr.State()
	if expected != nil && st.Workflow.RowVersion != *expected {
		return nil, model.IntakeState{}, apperr.VersionConflict(entityCallRequest)
	}
	return cr, st, nil
}

// save делает compare-and-set документа заявки по версии, прочитанной в load.
func (s *IntakeService) save(ctx context.Context, tx *gorm.DB, cr *model.CallRequest, st *model.IntakeState, extra map[string]any) error {
	st.Touch(s.deps.now())
	ok, err := repository.NewGormCallRequestRepository(tx).SaveIntake(ctx, cr.ID, cr.IntakeRowVersion, *st, extra)
	if err != nil {
		return fmt.Errorf("save intake: %w", err)
	}
	if !ok {
		return apperr.VersionConflict(entityCallRequest)
	}
	return nil
}

func (s *IntakeService) reload(ctx context.Context, id uuid.UUID) (*model.CallRequest, error) {
	cr, err := repository.NewGormCallRequestRepository(s.deps.DB).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload call request: %w", err)
	}
	return cr, nil
}

// UpdateIntake сливает поля анкеты и переводит фазу в QUESTIONNAIRE_DONE, когда анкета полна.
func (s *IntakeService) UpdateIntake(
	ctx context.Context,
	id uuid.UUID,
	expected *int,
	patch IntakePatch,
	actor audit.Actor,
) (*model.CallRequest, error) {
	source := patch.Source
	if source == "" {
		source = "operator"
	}
	keys := make([]string, 0, len(patch.Fields))
	for k := range patch.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		cr, st, err := s.load(ctx, tx, id, expected)
		if err != nil {
			return err
		}

		extra := map[string]any{}
		for _, k := range keys {
			v := strings.TrimSpace(patch.Fields[k])
			switch k {
			case model.FieldEmail:
				v = strings.ToLower(v)
				extra["email"] = v
			case model.FieldPhone:
				v = repository.NormalizePhone(v)
				extra["phone"] = v
			case model.FieldClientName:
				extra["name"] = v
			}
			var f *model.AnswerField
			if v != "" {
				f = &model.AnswerField{Value: v, Source: source, Confidence: 1}
			}
			if !st.Questionnaire.Set(k, f) {
				return apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown questionnaire field %q", k))
			}
		}
		if patch.WhatsAppConsent != nil {
			st.Questionnaire.WhatsAppConsent = *patch.WhatsAppConsent
		}
		if patch.Notes != nil {
			st.Questionnaire.Notes = strings.TrimSpace(*patch.Notes)
		}
		if st.Workflow.Phase == model.PhaseQuestionnaire && st.Questionnaire.Complete(model.OfferKindInspection) {
			st.Workflow.Phase = model.PhaseQuestionnaireDone
		}

		if err := s.save(ctx, tx, cr, &st, extra); err != nil {
			return err
		}
		return s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityCallRequest,
			EntityID:   cr.ID,
			Action:     model.ActionIntakeUpdated,
			New:        map[string]any{"patch_keys": keys, "phase": st.Workflow.Phase},
			Actor:      actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

// prepareTx подбирает слот, ставит удержание и записывает PREPARED-оффер в st.
// Неотправленный или отправленный, но не принятый оффер архивируется как SUPERSEDED.
func (s *IntakeService) prepareTx(
	ctx context.Context,
	tx *gorm.DB,
	cr *model.CallRequest,
	st *model.IntakeState,
	kind model.OfferKind,
	notBefore *time.Time,
	actor audit.Actor,
) error {
	now := s.deps.now()
	if ao := st.ActiveOffer; ao != nil && ao.State != model.OfferStateAccepted {
		_, err := s.appts.cancelTx(ctx, tx, ao.AppointmentID, cancelParams{Reason: model.CancelReasonSuperseded, Actor: actor})
		if err != nil && apperr.CodeOf(err) != apperr.CodeInvalidTransition && !apperr.IsNotFound(err) {
			return err
		}
		st.ArchiveActiveOffer(model.OfferOutcomeSuperseded, "REPREPARED", "", now)
	}

	resourceID, err := s.finder.PickResource(ctx, tx)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Conflict(apperr.CodeNoSlots, "no schedulable resource configured")
		}
		return err
	}
	slots, err := s.finder.FindAvailableSlots(ctx, tx, SlotQuery{
		ResourceID: resourceID,
		Count:      offerSlotCandidates,
		NotBefore:  notBefore,
	})
	if err != nil {
		return err
	}

	var held *model.Appointment
	for _, sl := range slots {
		a, err := s.appts.createHoldTx(ctx, tx, HoldRequest{
			ResourceID:    sl.ResourceID,
			Start:         sl.Start,
			End:           sl.End,
			CallRequestID: &cr.ID,
			VisitType:     kind.VisitType(),
			TTL:           s.emailHold,
			Actor:         actor,
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
		observability.Offers.WithLabelValues("no_slots").Inc()
		return apperr.Conflict(apperr.CodeNoSlots, "no free slots available")
	}

	st.ActiveOffer = &model.ActiveOffer{
		Kind:          kind,
		State:         model.OfferStatePrepared,
		Slot:          model.OfferSlot{Start: held.StartsAt, End: held.EndsAt, ResourceID: held.ResourceID},
		AppointmentID: held.ID,
		HoldExpiresAt: *held.HoldExpiresAt,
		AttemptNo:     st.LastAttemptNo(),
		PreparedAt:    now,
	}
	st.Workflow.Phase = model.PhaseOfferPrepared
	observability.Offers.WithLabelValues("prepared").Inc()
	return nil
}

// PrepareOffer готовит оффер по полной анкете.
func (s *IntakeService) PrepareOffer(
	ctx context.Context,
	id uuid.UUID,
	kind model.OfferKind,
	expected *int,
	actor audit.Actor,
) (*model.CallRequest, error) {
	if kind == "" {
		kind = model.OfferKindInspection
	}
	if !kind.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, fmt.Sprintf("unknown offer kind %q", kind))
	}

	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		cr, st, err := s.load(ctx, tx, id, expected)
		if err != nil {
			return err
		}
		if missing := st.Questionnaire.Missing(model.RequiredFields(kind)); len(missing) > 0 {
			return apperr.Validation(apperr.CodeQuestionnaireIncomplete,
				"questionnaire incomplete: "+strings.Join(missing, ", "))
		}
		if err := s.prepareTx(ctx, tx, cr, &st, kind, nil, actor); err != nil {
			return err
		}
		if err := s.save(ctx, tx, cr, &st, nil); err != nil {
			return err
		}
		return s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityCallRequest,
			EntityID:   cr.ID,
			Action:     model.ActionOfferPrepared,
			New:        st.ActiveOffer,
			Actor:      actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

// sendTx отправляет активный оффер: при необходимости готовит новый, выпускает токен,
// ставит письмо (и WhatsApp-пинг) в outbox. Возвращает сырой токен.
func (s *IntakeService) sendTx(
	ctx context.Context,
	tx *gorm.DB,
	cr *model.CallRequest,
	st *model.IntakeState,
	actor audit.Actor,
) (string, error) {
	kind := model.OfferKindInspection
	if st.ActiveOffer != nil {
		kind = st.ActiveOffer.Kind
	}
	if missing := st.Questionnaire.Missing(model.RequiredFields(kind)); len(missing) > 0 {
		return "", apperr.Validation(apperr.CodeQuestionnaireIncomplete,
			"questionnaire incomplete: "+strings.Join(missing, ", "))
	}
	if st.LastAttemptNo() >= s.cfg.OfferMaxAttempts {
		observability.Offers.WithLabelValues("attempts_exhausted").Inc()
		return "", apperr.Conflict(apperr.CodeOfferAttemptsExhausted, "offer attempts exhausted")
	}

	now := s.deps.now()
	ready, err := s.offerReady(ctx, tx, st, now)
	if err != nil {
		return "", err
	}
	if !ready {
		if err := s.prepareTx(ctx, tx, cr, st, kind, nil, actor); err != nil {
			return "", err
		}
	}

	token, tokenHash, err := newOfferToken()
	if err != nil {
		return "", err
	}
	ao := st.ActiveOffer
	ao.State = model.OfferStateSent
	ao.SentAt = &now
	ao.Channel = model.ChannelEmail
	ao.TokenHash = tokenHash
	ao.AttemptNo++
	st.Workflow.Phase = model.PhaseOfferSent

	to := cr.Email
	if f := st.Questionnaire.Email; f.Present() {
		to = f.Value
	}
	address := ""
	if f := st.Questionnaire.Address; f.Present() {
		address = f.Value
	}
	if _, _, err := outbox.Enqueue(ctx, tx, outbox.Notification{
		EntityType:  entityCallRequest,
		EntityID:    cr.ID,
		TemplateKey: templateOfferEmail,
		Payload:     offerEmail(to, address, token, s.publicBaseURL, ao, s.loc),
	}, now); err != nil {
		return "", err
	}

	phone := cr.Phone
	if f := st.Questionnaire.Phone; f.Present() {
		phone = f.Value
	}
	if s.cfg.WhatsAppPing && st.Questionnaire.WhatsAppConsent && phone != "" {
		if _, _, err := outbox.Enqueue(ctx, tx, outbox.Notification{
			EntityType:  entityCallRequest,
			EntityID:    cr.ID,
			TemplateKey: templateWhatsAppOfferPing,
			Payload:     whatsAppOfferPing(phone, to),
		}, now); err != nil {
			return "", err
		}
	}

	if err := s.deps.Audit.Append(ctx, tx, audit.Entry{
		EntityType: entityCallRequest,
		EntityID:   cr.ID,
		Action:     model.ActionOfferSent,
		New: map[string]any{
			"appointment_id":  ao.AppointmentID,
			"hold_expires_at": ao.HoldExpiresAt,
			"attempt_no":      ao.AttemptNo,
		},
		Actor: actor,
	}); err != nil {
		return "", err
	}
	observability.Offers.WithLabelValues("sent").Inc()
	return token, nil
}

// offerReady: есть PREPARED-оффер и его удержание ещё живо.
func (s *IntakeService) offerReady(ctx context.Context, tx *gorm.DB, st *model.IntakeState, now time.Time) (bool, error) {
	ao := st.ActiveOffer
	if ao == nil || ao.State != model.OfferStatePrepared {
		return false, nil
	}
	a, err := repository.NewGormAppointmentRepository(tx).GetByID(ctx, ao.AppointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load offer appointment: %w", err)
	}
	return a.HoldLive(now), nil
}

// SendOfferOneClick отправляет оффер клиенту по email.
func (s *IntakeService) SendOfferOneClick(ctx context.Context, id uuid.UUID, expected *int, actor audit.Actor) (*SendResult, error) {
	var token string
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		cr, st, err := s.load(ctx, tx, id, expected)
		if err != nil {
			return err
		}
		token, err = s.sendTx(ctx, tx, cr, &st, actor)
		if err != nil {
			return err
		}
		return s.save(ctx, tx, cr, &st, contactedStatus(cr))
	})
	if err != nil {
		return nil, err
	}
	cr, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SendResult{CallRequest: cr, Token: token}, nil
}

func contactedStatus(cr *model.CallRequest) map[string]any {
	if cr.Status == model.CallRequestStatusNew {
		return map[string]any{"status": model.CallRequestStatusContacted}
	}
	return nil
}

// resolveOffer находит заявку и активный оффер по токену. Любой недействительный случай
// даёт один и тот же NotFound.
func (s *IntakeService) resolveOffer(ctx context.Context, tx *gorm.DB, token string) (*model.CallRequest, model.IntakeState, *model.Appointment, error) {
	errGone := apperr.NotFound(apperr.CodeOfferNotFound, offerNotFoundMsg)
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.IntakeState{}, nil, errGone
	}
	hash := hashToken(token)

	cr, err := repository.NewGormCallRequestRepository(tx).GetByOfferTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.IntakeState{}, nil, errGone
		}
		return nil, model.IntakeState{}, nil, fmt.Errorf("lookup offer: %w", err)
	}
	st := cr.State()
	ao := st.ActiveOffer
	if ao == nil || ao.State != model.OfferStateSent || !hmac.Equal([]byte(ao.TokenHash), []byte(hash)) {
		return nil, model.IntakeState{}, nil, errGone
	}
	a, err := repository.NewGormAppointmentRepository(tx).GetByID(ctx, ao.AppointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.IntakeState{}, nil, errGone
		}
		return nil, model.IntakeState{}, nil, fmt.Errorf("load offer appointment: %w", err)
	}
	if !a.HoldLive(s.deps.now()) {
		return nil, model.IntakeState{}, nil, errGone
	}
	return cr, st, a, nil
}

// PublicOfferView: только чтение, те же правила NotFound, что и у ответа на оффер.
func (s *IntakeService) PublicOfferView(ctx context.Context, token string) (*OfferView, error) {
	_, st, a, err := s.resolveOffer(ctx, s.deps.DB, token)
	if err != nil {
		return nil, err
	}
	view := &OfferView{
		Kind:          st.ActiveOffer.Kind,
		Start:         a.StartsAt,
		End:           a.EndsAt,
		Label:         s.finder.Label(calendar.TimeRange{Start: a.StartsAt, End: a.EndsAt}),
		HoldExpiresAt: *a.HoldExpiresAt,
	}
	if f := st.Questionnaire.Address; f.Present() {
		view.Address = f.Value
	}
	return view, nil
}

// HandlePublicOfferResponse обрабатывает переход клиента по ссылке из письма.
func (s *IntakeService) HandlePublicOfferResponse(
	ctx context.Context,
	token, action, suggestion string,
	actor audit.Actor,
) (*OfferResponseResult, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action != OfferActionAccept && action != OfferActionReject {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "action must be accept or reject")
	}
	suggestion = truncateText(strings.TrimSpace(suggestion), maxSuggestionLen)

	res := &OfferResponseResult{Action: action}
	var crID uuid.UUID
	err := inTx(ctx, s.deps.DB, func(tx *gorm.DB) error {
		cr, st, a, err := s.resolveOffer(ctx, tx, token)
		if err != nil {
			return err
		}
		crID = cr.ID
		now := s.deps.now()

		if action == OfferActionAccept {
			confirmed, err := s.appts.confirmTx(ctx, tx, a.ID, a.RowVersion, ConfirmOptions{
				Actor:      actor,
				LockReason: model.LockReasonEmailOfferAccepted,
			})
			if err != nil {
				return err
			}
			res.Appointment = confirmed
			st.ActiveOffer.State = model.OfferStateAccepted
			st.ActiveOffer.TokenHash = ""
			st.AppendHistory(model.OfferOutcomeAccepted, "CLIENT_ACCEPT", "", now)
			st.Workflow.Phase = model.PhaseInspectionScheduled

			if err := s.save(ctx, tx, cr, &st, map[string]any{"status": model.CallRequestStatusScheduled}); err != nil {
				return err
			}
			observability.Offers.WithLabelValues("accepted").Inc()
			return s.deps.Audit.Append(ctx, tx, audit.Entry{
				EntityType: entityCallRequest,
				EntityID:   cr.ID,
				Action:     model.ActionOfferAccepted,
				New:        map[string]any{"appointment_id": a.ID},
				Actor:      actor,
			})
		}

		cancelled, err := s.appts.cancelTx(ctx, tx, a.ID, cancelParams{
			Reason:          model.CancelReasonClientReject,
			ExpectedVersion: &a.RowVersion,
			Actor:           actor,
		})
		if err != nil {
			return err
		}
		res.Appointment = cancelled
		kind := st.ActiveOffer.Kind
		rejectedStart := st.ActiveOffer.Slot.Start
		st.ArchiveActiveOffer(model.OfferOutcomeRejected, model.CancelReasonClientReject, suggestion, now)

		next, err := s.nextAfterReject(ctx, tx, cr, &st, kind, rejectedStart)
		if err != nil {
			return err
		}
		res.NextToken = next
		res.NoSlots = next == ""

		if err := s.save(ctx, tx, cr, &st, nil); err != nil {
			return err
		}
		observability.Offers.WithLabelValues("rejected").Inc()
		return s.deps.Audit.Append(ctx, tx, audit.Entry{
			EntityType: entityCallRequest,
			EntityID:   cr.ID,
			Action:     model.ActionOfferRejected,
			New:        map[string]any{"reason": model.CancelReasonClientReject, "next_offer_sent": next != ""},
			Actor:      actor,
			Metadata:   map[string]any{"suggestion": suggestion},
		})
	})
	if err != nil {
		return nil, err
	}

	cr, err := s.reload(ctx, crID)
	if err != nil {
		return nil, err
	}
	res.CallRequest = cr
	return res, nil
}

// nextAfterReject готовит и отправляет следующий оффер позже отклонённого слота.
// Нет слотов или исчерпаны попытки → фаза OFFER_REJECTED_NO_SLOTS и пустой токен.
func (s *IntakeService) nextAfterReject(
	ctx context.Context,
	tx *gorm.DB,
	cr *model.CallRequest,
	st *model.IntakeState,
	kind model.OfferKind,
	rejectedStart time.Time,
) (string, error) {
	system := audit.SystemEmail()
	if st.LastAttemptNo() >= s.cfg.OfferMaxAttempts {
		st.Workflow.Phase = model.PhaseOfferRejectedNoSlots
		return "", nil
	}
	err := s.prepareTx(ctx, tx, cr, st, kind, &rejectedStart, system)
	if apperr.CodeOf(err) == apperr.CodeNoSlots {
		st.Workflow.Phase = model.PhaseOfferRejectedNoSlots
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token, err := s.sendTx(ctx, tx, cr, st, system)
	if err != nil {
		return "", err
	}
	return token, nil
}

func newOfferToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate offer token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func logOfferSkip(ctx context.Context, id uuid.UUID, reason string, err error) {
	logging.From(ctx).Warn("offer not sent", "call_request_id", id, "reason", reason, "error", err)
}
