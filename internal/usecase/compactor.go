package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"agentdesk/internal/domain"
)

// compactionNoteName marks the synthesized system turn that replaces dropped history.
const compactionNoteName = "context_compaction"

// CompactionConfig controls history compaction.
type CompactionConfig struct {
	Threshold  int // estimated tokens above which history is compacted
	KeepRecent int // non-system turns kept verbatim
}

// Compactor trims conversation history that exceeds a token budget, keeping
// every system turn and the most recent non-system turns.
type Compactor struct {
	config  CompactionConfig
	counter domain.TokenCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewCompactor creates a compactor. Zero config values take the defaults
// (threshold 50000 tokens, keep 10 recent turns).
func NewCompactor(cfg CompactionConfig, counter domain.TokenCounter, logger *slog.Logger) *Compactor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 50000
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 10
	}
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{config: cfg, counter: counter, logger: logger, now: time.Now}
}

// Compact returns history unchanged when it fits the budget, or a new slice
// of system turns, a compaction note, and the most recent non-system turns.
// The input slice is never modified.
func (c *Compactor) Compact(history []domain.Message) []domain.Message {
	tokens := c.counter.CountMessages(history)
	if tokens <= c.config.Threshold {
		return history
	}
	if len(history) <= c.config.KeepRecent+1 {
		return history
	}

	var system, rest []domain.Message
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	keep := min(c.config.KeepRecent, len(rest))
	older := len(rest) - keep
	if older == 0 {
		// Everything over budget is system text or recent turns; nothing to drop.
		return history
	}
	recent := rest[len(rest)-keep:]

	out := make([]domain.Message, 0, len(system)+1+len(recent))
	out = append(out, system...)
	out = append(out, domain.Message{
		Role:      domain.RoleSystem,
		Name:      compactionNoteName,
		Content:   compactionNote(older),
		Timestamp: c.now(),
	})
	out = append(out, recent...)

	c.logger.Warn("history compacted",
		"tokens", tokens,
		"threshold", c.config.Threshold,
		"removed", older,
		"kept", len(out),
	)
	return out
}

func compactionNote(removed int) string {
	return fmt.Sprintf("[System Note: Previous conversation history compacted. %d older messages were removed to maintain efficiency.]", removed)
}
