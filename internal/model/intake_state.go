package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IntakePhase: фаза воркфлоу заявки.
type IntakePhase string

const (
	PhaseQuestionnaire        IntakePhase = "QUESTIONNAIRE"
	PhaseQuestionnaireDone    IntakePhase = "QUESTIONNAIRE_DONE"
	PhaseOfferPrepared        IntakePhase = "OFFER_PREPARED"
	PhaseOfferSent            IntakePhase = "OFFER_SENT"
	PhaseInspectionScheduled  IntakePhase = "INSPECTION_SCHEDULED"
	PhaseOfferRejectedNoSlots IntakePhase = "OFFER_REJECTED_NO_SLOTS"
	PhaseConverted            IntakePhase = "CONVERTED"
)

type OfferKind string

const (
	OfferKindInspection   OfferKind = "INSPECTION"
	OfferKindServiceVisit OfferKind = "SERVICE_VISIT"
)

func (k OfferKind) Valid() bool {
	return k == OfferKindInspection || k == OfferKindServiceVisit
}

// VisitType визита, который создаётся под оффер данного вида.
func (k OfferKind) VisitType() VisitType {
	switch k {
	case OfferKindServiceVisit:
		return VisitTypeInstallation
	default:
		return VisitTypePrimary
	}
}

type OfferState string

const (
	OfferStatePrepared OfferState = "PREPARED"
	OfferStateSent     OfferState = "SENT"
	OfferStateAccepted OfferState = "ACCEPTED"
)

type OfferOutcome string

const (
	OfferOutcomeSuperseded OfferOutcome = "SUPERSEDED"
	OfferOutcomeRejected   OfferOutcome = "REJECTED"
	OfferOutcomeAccepted   OfferOutcome = "ACCEPTED"
)

// Имена полей анкеты.
const (
	FieldEmail           = "email"
	FieldAddress         = "address"
	FieldServiceType     = "service_type"
	FieldPhone           = "phone"
	FieldClientName      = "client_name"
	FieldAreaM2          = "area_m2"
	FieldUrgency         = "urgency"
	FieldWhatsAppConsent = "whatsapp_consent"
	FieldNotes           = "notes"
)

// AnswerField: значение поля анкеты и его происхождение.
type AnswerField struct {
	Value      string  `json:"value"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (f *AnswerField) Present() bool {
	return f != nil && strings.TrimSpace(f.Value) != ""
}

type Questionnaire struct {
	Email       *AnswerField `json:"email,omitempty"`
	Address     *AnswerField `json:"address,omitempty"`
	ServiceType *AnswerField `json:"service_type,omitempty"`
	Phone       *AnswerField `json:"phone,omitempty"`
	ClientName  *AnswerField `json:"client_name,omitempty"`
	AreaM2      *AnswerField `json:"area_m2,omitempty"`
	Urgency     *AnswerField `json:"urgency,omitempty"`

	WhatsAppConsent bool   `json:"whatsapp_consent,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Field возвращает поле по имени; nil для неизвестных или пустых.
func (q *Questionnaire) Field(name string) *AnswerField {
	switch name {
	case FieldEmail:
		return q.Email
	case FieldAddress:
		return q.Address
	case FieldServiceType:
		return q.ServiceType
	case FieldPhone:
		return q.Phone
	case FieldClientName:
		return q.ClientName
	case FieldAreaM2:
		return q.AreaM2
	case FieldUrgency:
		return q.Urgency
	default:
		return nil
	}
}

// Set записывает значение поля. Возвращает false для неизвестного имени.
func (q *Questionnaire) Set(name string, f *AnswerField) bool {
	switch name {
	case FieldEmail:
		q.Email = f
	case FieldAddress:
		q.Address = f
	case FieldServiceType:
		q.ServiceType = f
	case FieldPhone:
		q.Phone = f
	case FieldClientName:
		q.ClientName = f
	case FieldAreaM2:
		q.AreaM2 = f
	case FieldUrgency:
		q.Urgency = f
	default:
		return false
	}
	return true
}

// RequiredFields: обязательные поля анкеты для оффера данного вида.
func RequiredFields(kind OfferKind) []string {
	base := []string{FieldEmail, FieldAddress, FieldServiceType}
	if kind == OfferKindServiceVisit {
		return append(base, FieldAreaM2)
	}
	return base
}

// Missing возвращает незаполненные поля из списка names в исходном порядке.
func (q *Questionnaire) Missing(names []string) []string {
	var out []string
	for _, n := range names {
		if !q.Field(n).Present() {
			out = append(out, n)
		}
	}
	return out
}

func (q *Questionnaire) Complete(kind OfferKind) bool {
	return len(q.Missing(RequiredFields(kind))) == 0
}

type Workflow struct {
	Phase      IntakePhase `json:"phase"`
	RowVersion int         `json:"row_version"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type OfferSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ResourceID uuid.UUID `json:"resource_id"`
}

type ActiveOffer struct {
	Kind          OfferKind  `json:"kind"`
	State         OfferState `json:"state"`
	Slot          OfferSlot  `json:"slot"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	HoldExpiresAt time.Time  `json:"hold_expires_at"`
	TokenHash     string     `json:"token_hash,omitempty"`
	Channel       Channel    `json:"channel,omitempty"`
	AttemptNo     int        `json:"attempt_no"`
	PreparedAt    time.Time  `json:"prepared_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

type OfferHistoryEntry struct {
	Kind          OfferKind    `json:"kind"`
	SlotStart     time.Time    `json:"slot_start"`
	AppointmentID uuid.UUID    `json:"appointment_id"`
	AttemptNo     int          `json:"attempt_no"`
	Status        OfferOutcome `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Suggestion    string       `json:"suggestion,omitempty"`
	At            time.Time    `json:"at"`
}

type ReplyCounter struct {
	Count      int        `json:"count"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
}

type AutoReplies struct {
	MissingData ReplyCounter `json:"missing_data"`
	Offer       ReplyCounter `json:"offer"`
}

type InboundEmail struct {
	MessageID string `json:"message_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	From      string `json:"from,omitempty"`
}

// IntakeState хранит встраиваемый документ заявки. Workflow.RowVersion служит токеном
// оптимистичной блокировки всего документа.
type IntakeState struct {
	Questionnaire Questionnaire       `json:"questionnaire"`
	Workflow      Workflow            `json:"workflow"`
	ActiveOffer   *ActiveOffer        `json:"active_offer,omitempty"`
	OfferHistory  []OfferHistoryEntry `json:"offer_history,omitempty"`
	AutoReplies   AutoReplies         `json:"auto_replies"`
	LastInbound   *InboundEmail       `json:"last_inbound_email,omitempty"`
}

// ArchiveActiveOffer переносит текущий оффер в историю с указанным исходом.
func (s *IntakeState) ArchiveActiveOffer(outcome OfferOutcome, reason, suggestion string, at time.Time) {
	if s.ActiveOffer == nil {
		return
	}
	s.AppendHistory(outcome, reason, suggestion, at)
	s.ActiveOffer = nil
}

// AppendHistory записывает исход текущего оффера, не снимая его.
func (s *IntakeState) AppendHistory(outcome OfferOutcome, reason, suggestion string, at time.Time) {
	if s.ActiveOffer == nil {
		return
	}
	s.OfferHistory = append(s.OfferHistory, OfferHistoryEntry{
		Kind:          s.ActiveOffer.Kind,
		SlotStart:     s.ActiveOffer.Slot.Start,
		AppointmentID: s.ActiveOffer.AppointmentID,
		AttemptNo:     s.ActiveOffer.AttemptNo,
		Status:        outcome,
		Reason:        reason,
		Suggestion:    suggestion,
		At:            at,
	})
}

// LastAttemptNo: номер последней попытки оффера среди активного и истории.
func (s *IntakeState) LastAttemptNo() int {
	n := 0
	if s.ActiveOffer != nil {
		n = s.ActiveOffer.AttemptNo
	}
	for _, h := range s.OfferHistory {
		if h.AttemptNo > n {
			n = h.AttemptNo
		}
	}
	return n
}

// Touch увеличивает версию документа.
func (s *IntakeState) Touch(now time.Time) {
	s.Workflow.RowVersion++
	s.Workflow.UpdatedAt = now
}

// Normalize подставляет фазу по умолчанию для только что созданной заявки.
func (s *IntakeState) Normalize() {
	if s.Workflow.Phase == "" {
		s.Workflow.Phase = PhaseQuestionnaire
	}
}
