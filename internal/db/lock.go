package db

import (
	"context"
	"sort"

	"gorm.io/gorm"
)

// AdvisoryXactLock берёт транзакционные advisory-локи Postgres по строковым ключам.
// Ключи сортируются, чтобы две транзакции с одинаковым набором не взаимоблокировались.
// Для других диалектов (SQLite) ничего не делает: там писатель один.
func AdvisoryXactLock(ctx context.Context, tx *gorm.DB, keys ...string) error {
	if tx.Dialector.Name() != "postgres" || len(keys) == 0 {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		if err := tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", k).Error; err != nil {
			return err
		}
	}
	return nil
}
