package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

type CallRequestRepository interface {
	Create(ctx context.Context, cr *model.CallRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.CallRequest, error)
	// Поиск по sha256-хэшу токена оффера.
	GetByOfferTokenHash(ctx context.Context, tokenHash string) (*model.CallRequest, error)
	// Последняя открытая заявка по email или телефону.
	FindOpenByContact(ctx context.Context, email, phone string) (*model.CallRequest, error)
	FindByExternalRef(ctx context.Context, ref string) (*model.CallRequest, error)
	// Compare-and-set документа заявки по ожидаемой версии.
	SaveIntake(ctx context.Context, id uuid.UUID, expectedVersion int, st model.IntakeState, extra map[string]any) (bool, error)
}

var _ CallRequestRepository = (*GormCallRequestRepository)(nil)

type GormCallRequestRepository struct {
	db *gorm.DB
}

func NewGormCallRequestRepository(db *gorm.DB) *GormCallRequestRepository {
	return &GormCallRequestRepository{db: db}
}

func (r *GormCallRequestRepository) Create(ctx context.Context, cr *model.CallRequest) error {
	return r.db.WithContext(ctx).Create(cr).Error
}

func (r *GormCallRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CallRequest, error) {
	var cr model.CallRequest
	if err := r.db.WithContext(ctx).First(&cr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *GormCallRequestRepository) GetByOfferTokenHash(ctx context.Context, tokenHash string) (*model.CallRequest, error) {
	if tokenHash == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var cr model.CallRequest
	if err := r.db.WithContext(ctx).First(&cr, "offer_token_hash = ?", tokenHash).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *GormCallRequestRepository) FindOpenByContact(ctx context.Context, email, phone string) (*model.CallRequest, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, gorm.ErrRecordNotFound
	}

	q := r.db.WithContext(ctx).
		Model(&model.CallRequest{}).
		Where("status <> ?", model.CallRequestStatusClosed)
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	default:
		q = q.Where("phone = ?", phone)
	}

	var cr model.CallRequest
	if err := q.Order("created_at DESC").First(&cr).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *GormCallRequestRepository) FindByExternalRef(ctx context.Context, ref string) (*model.CallRequest, error) {
	var cr model.CallRequest
	if err := r.db.WithContext(ctx).First(&cr, "external_ref = ?", ref).Error; err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *GormCallRequestRepository) SaveIntake(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int,
	st model.IntakeState,
	extra map[string]any,
) (bool, error) {
	var tokenHash *string
	if st.ActiveOffer != nil && st.ActiveOffer.TokenHash != "" {
		h := st.ActiveOffer.TokenHash
		tokenHash = &h
	}

	set := map[string]any{
		"intake_state":       datatypes.NewJSONType(st),
		"intake_row_version": st.Workflow.RowVersion,
		"offer_token_hash":   tokenHash,
	}
	for k, v := range extra {
		set[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&model.CallRequest{}).
		Where("id = ? AND intake_row_version = ?", id, expectedVersion).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
