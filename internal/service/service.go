package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

// Deps: общие зависимости доменных сервисов.
type Deps struct {
	DB    *gorm.DB
	Audit audit.Sink
	Now   func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Audit == nil {
		d.Audit = audit.NewGormSink()
	}
	return d
}

func (d Deps) now() time.Time { return d.Now().UTC() }

// truncateText обрезает s до n байт по границе руны.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// IdentityKey возвращает ключ личности для разговорных локов: цифры телефона, иначе email в нижнем регистре.
func IdentityKey(phone, email string) string {
	if p := repository.NormalizePhone(phone); p != "" {
		return p
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// notFound переводит gorm.ErrRecordNotFound в доменную ошибку, остальное оборачивает.
func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound(apperr.CodeNotFound, entity+" not found"), err)
	}
	return fmt.Errorf("load %s: %w", entity, err)
}

func inTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
