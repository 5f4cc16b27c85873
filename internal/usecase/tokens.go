package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"agentdesk/internal/domain"
)

// charsPerToken is the heuristic character-to-token ratio.
const charsPerToken = 3.5

// HeuristicCounter estimates tokens as ceil(characters / 3.5).
type HeuristicCounter struct{}

// CountTokens returns the estimate for a single string.
func (HeuristicCounter) CountTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
}

// CountMessages sums the estimate over each turn's canonical text.
func (h HeuristicCounter) CountMessages(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += h.CountTokens(turnText(m))
	}
	return total
}

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding (e.g. "cl100k_base").
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountTokens returns the exact BPE token count for text.
func (c *TiktokenCounter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages sums the token count over each turn's canonical text.
func (c *TiktokenCounter) CountMessages(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountTokens(turnText(m))
	}
	return total
}

// NewTokenCounter returns the counter named by kind ("heuristic" or "tiktoken").
func NewTokenCounter(kind string) (domain.TokenCounter, error) {
	switch kind {
	case "", "heuristic":
		return HeuristicCounter{}, nil
	case "tiktoken":
		return NewTiktokenCounter("cl100k_base")
	default:
		return nil, fmt.Errorf("unknown tokenizer %q: %w", kind, domain.ErrInvalidInput)
	}
}

// turnText renders a turn as text. Turns that only carry tool calls are
// serialized to JSON so they still count against the budget.
func turnText(m domain.Message) string {
	if m.Content != "" || len(m.ToolCalls) == 0 {
		return m.Content
	}
	b, err := json.Marshal(m.ToolCalls)
	if err != nil {
		return ""
	}
	return string(b)
}
