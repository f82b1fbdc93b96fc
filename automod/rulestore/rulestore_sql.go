package rulestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Row layout for the rules table. Config is the raw JSON config document.
type RuleRow struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	GuildID   string `gorm:"index;not null"`
	Type      string `gorm:"not null"`
	Config    string
	Action    string `gorm:"not null"`
	Priority  int
	Active    bool
}

func (RuleRow) TableName() string {
	return "automod_rules"
}

type SQLRuleStore struct {
	db *gorm.DB
}

var _ RuleStore = (*SQLRuleStore)(nil)

func NewSQLRuleStore(db *gorm.DB) (*SQLRuleStore, error) {
	if err := db.AutoMigrate(&RuleRow{}); err != nil {
		return nil, fmt.Errorf("migrating automod rules table: %w", err)
	}
	return &SQLRuleStore{db: db}, nil
}

func (s *SQLRuleStore) GetRules(ctx context.Context, guildID string) ([]StoredRule, error) {
	var rows []RuleRow
	err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("priority asc, created_at asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying rules for guild %s: %w", guildID, err)
	}
	out := make([]StoredRule, 0, len(rows))
	for _, row := range rows {
		out = append(out, StoredRule{
			ID:        strconv.FormatUint(uint64(row.ID), 10),
			GuildID:   row.GuildID,
			Type:      row.Type,
			Config:    []byte(row.Config),
			Action:    row.Action,
			Priority:  row.Priority,
			Active:    row.Active,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// Inserts a rule, returning the assigned ID. Used by seeding tools and tests; the authoring system normally owns writes.
func (s *SQLRuleStore) CreateRule(ctx context.Context, rule StoredRule) (string, error) {
	row := RuleRow{
		CreatedAt: rule.CreatedAt,
		GuildID:   rule.GuildID,
		Type:      rule.Type,
		Config:    string(rule.Config),
		Action:    rule.Action,
		Priority:  rule.Priority,
		Active:    rule.Active,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("inserting rule for guild %s: %w", rule.GuildID, err)
	}
	return strconv.FormatUint(uint64(row.ID), 10), nil
}
