package caselog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

type CaseRow struct {
	ID           uint      `gorm:"primarykey"`
	CreatedAt    time.Time `gorm:"index"`
	GuildID      string    `gorm:"index:idx_automod_case_guild_user;not null"`
	UserID       string    `gorm:"index:idx_automod_case_guild_user;not null"`
	UserTag      string
	ModeratorID  string
	ModeratorTag string
	Action       string `gorm:"not null"`
	Reason       string
}

func (CaseRow) TableName() string {
	return "automod_cases"
}

type SQLCaseLog struct {
	db *gorm.DB
}

var _ CaseLog = (*SQLCaseLog)(nil)

func NewSQLCaseLog(db *gorm.DB) (*SQLCaseLog, error) {
	if err := db.AutoMigrate(&CaseRow{}); err != nil {
		return nil, fmt.Errorf("migrating automod cases table: %w", err)
	}
	return &SQLCaseLog{db: db}, nil
}

func (l *SQLCaseLog) CreateCase(ctx context.Context, c Case) (string, error) {
	row := CaseRow{
		CreatedAt:    c.CreatedAt,
		GuildID:      c.GuildID,
		UserID:       c.UserID,
		UserTag:      c.UserTag,
		ModeratorID:  c.ModeratorID,
		ModeratorTag: c.ModeratorTag,
		Action:       c.Action,
		Reason:       c.Reason,
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("creating case for guild %s user %s: %w", c.GuildID, c.UserID, err)
	}
	return strconv.FormatUint(uint64(row.ID), 10), nil
}

// Returns the most recent cases for a guild, newest first.
func (l *SQLCaseLog) ListCases(ctx context.Context, guildID string, limit int) ([]Case, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []CaseRow
	err := l.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing cases for guild %s: %w", guildID, err)
	}
	out := make([]Case, 0, len(rows))
	for _, row := range rows {
		out = append(out, Case{
			ID:           strconv.FormatUint(uint64(row.ID), 10),
			GuildID:      row.GuildID,
			UserID:       row.UserID,
			UserTag:      row.UserTag,
			ModeratorID:  row.ModeratorID,
			ModeratorTag: row.ModeratorTag,
			Action:       row.Action,
			Reason:       row.Reason,
			CreatedAt:    row.CreatedAt,
		})
	}
	return out, nil
}
