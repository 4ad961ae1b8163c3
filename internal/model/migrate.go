package model

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate выполняет миграцию всех сущностей планировщика.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&CallRequest{},
		&Appointment{},
		&ConversationLock{},
		&SchedulePreview{},
		&NotificationOutbox{},
		&Event{},
	)
}

// Ограничение исключения: два HELD/CONFIRMED визита одного ресурса не пересекаются.
// Только Postgres; для SQLite авторитетна проверка внутри транзакции CreateHold.
var overlapGuardStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'appointments_no_overlap') THEN
		ALTER TABLE appointments
			ADD CONSTRAINT appointments_no_overlap
			EXCLUDE USING gist (
				resource_id WITH =,
				tstzrange(starts_at, ends_at, '[)') WITH &&
			) WHERE (status IN ('HELD', 'CONFIRMED'));
	END IF;
END $$`,
	`DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'appointments_window_valid') THEN
		ALTER TABLE appointments ADD CONSTRAINT appointments_window_valid CHECK (ends_at > starts_at);
	END IF;
END $$`,
}

// InstallOverlapGuard ставит ограничения БД поверх AutoMigrate.
func InstallOverlapGuard(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, stmt := range overlapGuardStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("install overlap guard: %w", err)
		}
	}
	return nil
}
