package rulestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatSettings struct {
	ChatID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Enabled   bool
	UpdatedAt time.Time
}

type ChatTerm struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    int64  `gorm:"uniqueIndex:idx_chat_term;not null"`
	Kind      string `gorm:"uniqueIndex:idx_chat_term;not null"`
	Term      string `gorm:"uniqueIndex:idx_chat_term;not null"`
	CreatedAt time.Time
}

// RuleStore backed by a SQL database (sqlite or postgres) through gorm.
type SQLRuleStore struct {
	db *gorm.DB
}

var _ RuleStore = (*SQLRuleStore)(nil)

// Wraps an existing gorm handle, running migrations for the ruleset tables.
func NewSQLRuleStore(db *gorm.DB) (*SQLRuleStore, error) {
	if err := db.AutoMigrate(&ChatSettings{}, &ChatTerm{}); err != nil {
		return nil, fmt.Errorf("migrating ruleset tables: %w", err)
	}
	return &SQLRuleStore{db: db}, nil
}

func (s *SQLRuleStore) FetchRuleSet(ctx context.Context, chatID int64) (*RuleSet, error) {
	rs := RuleSet{}

	var settings ChatSettings
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&settings).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("fetching chat settings: %w", err)
	}
	if err == nil {
		rs.Enabled = settings.Enabled
	}

	var terms []ChatTerm
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Find(&terms).Error; err != nil {
		return nil, fmt.Errorf("fetching chat terms: %w", err)
	}
	var deny, allow []string
	for _, t := range terms {
		switch ListKind(t.Kind) {
		case DenyList:
			deny = append(deny, t.Term)
		case AllowList:
			allow = append(allow, t.Term)
		default:
			return nil, fmt.Errorf("%w: term %d has unknown kind %q", ErrMalformedRecord, t.ID, t.Kind)
		}
	}
	rs.Denylist = NormalizeTerms(deny)
	rs.Allowlist = NormalizeTerms(allow)
	return &rs, nil
}

func (s *SQLRuleStore) WriteEnabled(ctx context.Context, chatID int64, enabled bool) error {
	row := ChatSettings{
		ChatID:    chatID,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("writing chat settings: %w", err)
	}
	return nil
}

func (s *SQLRuleStore) AddTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	row := ChatTerm{
		ChatID: chatID,
		Kind:   string(kind),
		Term:   term,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("adding %s term: %w", kind, err)
	}
	return nil
}

func (s *SQLRuleStore) RemoveTerm(ctx context.Context, chatID int64, kind ListKind, term string) error {
	term, err := NormalizeTerm(term)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Where("chat_id = ? AND kind = ? AND term = ?", chatID, string(kind), term).
		Delete(&ChatTerm{}).Error
	if err != nil {
		return fmt.Errorf("removing %s term: %w", kind, err)
	}
	return nil
}
