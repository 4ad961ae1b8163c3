package model

import "gorm.io/datatypes"

type CallRequestSource string

const (
	CallRequestSourceVoice CallRequestSource = "VOICE"
	CallRequestSourceEmail CallRequestSource = "EMAIL"
	CallRequestSourceWeb   CallRequestSource = "WEB"
	CallRequestSourceAdmin CallRequestSource = "ADMIN"
)

type CallRequestStatus string

const (
	CallRequestStatusNew       CallRequestStatus = "NEW"
	CallRequestStatusContacted CallRequestStatus = "CONTACTED"
	CallRequestStatusScheduled CallRequestStatus = "SCHEDULED"
	CallRequestStatusClosed    CallRequestStatus = "CLOSED"
)

// call_requests — входящие заявки (лиды).
type CallRequest struct {
	Base

	Name        string            `gorm:"type:varchar(255)" json:"name"`
	Phone       string            `gorm:"type:varchar(32);index" json:"phone"`
	Email       string            `gorm:"type:varchar(255);index" json:"email"`
	Source      CallRequestSource `gorm:"type:varchar(16);not null" json:"source"`
	ExternalRef string            `gorm:"type:varchar(128);index" json:"external_ref,omitempty"`
	Status      CallRequestStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	IntakeState datatypes.JSONType[IntakeState] `json:"intake_state"`
	// Зеркало IntakeState.Workflow.RowVersion: по нему делается compare-and-set в SQL.
	IntakeRowVersion int `gorm:"not null;default:0" json:"intake_row_version"`

	// Копия active_offer.token_hash для поиска по хэшу; сырой токен не хранится.
	OfferTokenHash *string `gorm:"type:varchar(64);uniqueIndex" json:"-"`
}

// State возвращает копию документа заявки с подставленными значениями по умолчанию.
func (c *CallRequest) State() IntakeState {
	st := c.IntakeState.Data()
	st.Normalize()
	return st
}
