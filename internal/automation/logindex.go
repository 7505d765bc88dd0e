package automation

import (
	"context"

	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/models"
)

// LogIndexer pushes one log entry into the search index.
type LogIndexer interface {
	IndexLog(ctx context.Context, entry *models.AutomationLog, rule *models.AutomationRule) error
}

// IndexedLogStore decorates a LogAppender with best-effort search indexing.
// The database row is the source of truth; an indexing failure is logged
// and swallowed.
type IndexedLogStore struct {
	inner LogAppender
	rules RuleReader
	index LogIndexer
}

// NewIndexedLogStore wires the decorator. A nil indexer leaves the inner
// appender untouched.
func NewIndexedLogStore(inner LogAppender, rules RuleReader, index LogIndexer) *IndexedLogStore {
	return &IndexedLogStore{inner: inner, rules: rules, index: index}
}

// Append writes the row, then mirrors it into the index.
func (s *IndexedLogStore) Append(ctx context.Context, entry *models.AutomationLog) error {
	if err := s.inner.Append(ctx, entry); err != nil {
		return err
	}
	if s.index == nil {
		return nil
	}

	rule, err := s.rules.GetByID(ctx, entry.WorkspaceID, entry.RuleID)
	if err != nil {
		rule = nil
	}
	if err := s.index.IndexLog(ctx, entry, rule); err != nil {
		log.Warn().Err(err).
			Str("log_id", entry.ID.String()).
			Msg("Failed to index automation log")
	}
	return nil
}
