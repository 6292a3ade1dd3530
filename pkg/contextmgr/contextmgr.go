package contextmgr

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"agentd/pkg/config"
	"agentd/pkg/logx"
)

// Manager owns the ordered conversation buffer for one session. The executor
// appends through this API and never mutates items directly.
type Manager struct {
	mu      sync.Mutex
	items   []*Item
	counter TokenCounter
	logger  *logx.Logger

	windowTokens      int
	compactAtFraction float64
	completionReserve int
	keepRecentTurns   int
}

// NewManager creates a context manager for a model window of windowTokens.
func NewManager(cfg config.Context, windowTokens int, counter TokenCounter) *Manager {
	if counter == nil {
		counter = NewTokenCounter()
	}
	return &Manager{
		counter:           counter,
		logger:            logx.NewLogger("contextmgr"),
		windowTokens:      windowTokens,
		compactAtFraction: cfg.CompactAtFraction,
		completionReserve: cfg.CompletionReserve,
		keepRecentTurns:   cfg.KeepRecentTurns,
	}
}

// SetSystem installs (or replaces) the protected system item. It is pinned
// at the front of the buffer and survives every compaction byte-identical.
func (m *Manager) SetSystem(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &Item{
		Content:   content,
		Tier:      TierProtected,
		Tokens:    m.counter.Count(content),
		Category:  CategorySystem,
		CreatedAt: time.Now().UTC(),
		Protected: true,
	}
	if len(m.items) > 0 && m.items[0].Protected {
		m.items[0] = item
		return
	}
	m.items = append([]*Item{item}, m.items...)
}

// AppendUser appends a user message.
func (m *Manager) AppendUser(content string) {
	m.append(CategoryUser, TierWorking, content)
}

// AppendAssistant appends an assistant message.
func (m *Manager) AppendAssistant(content string) {
	m.append(CategoryAssistant, TierWorking, content)
}

// AppendToolResult appends a structured tool result rendering.
func (m *Manager) AppendToolResult(content string) {
	m.append(CategoryToolResult, TierWorking, content)
}

// AppendRelevant appends retrieved reference material at the relevant tier.
func (m *Manager) AppendRelevant(content string) {
	m.append(CategoryToolResult, TierRelevant, content)
}

func (m *Manager) append(category Category, tier Tier, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, &Item{
		Content:   content,
		Tier:      tier,
		Tokens:    m.counter.Count(content),
		Category:  category,
		CreatedAt: time.Now().UTC(),
	})
}

// Items returns a copy of the buffer.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Item, len(m.items))
	for i, item := range m.items {
		result[i] = *item
	}
	return result
}

// TotalTokens returns the current token footprint of the buffer.
func (m *Manager) TotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLocked()
}

func (m *Manager) totalLocked() int {
	total := 0
	for _, item := range m.items {
		total += item.Tokens
	}
	return total
}

// ShouldCompact reports whether the buffer has crossed the compaction
// threshold fraction of the model window.
func (m *Manager) ShouldCompact() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.totalLocked()) > m.compactAtFraction*float64(m.windowTokens)
}

// CompactionResult describes one compaction pass.
type CompactionResult struct {
	TokensBefore    int
	TokensAfter     int
	ItemsCompressed int
	Strategy        Strategy
}

// Compact shrinks the buffer toward the target budget (window minus the
// completion reserve). Protected items and the most recent turns are kept
// verbatim; the remainder is compressed with progressively more aggressive
// strategies. The buffer always retains at least the system item plus the
// most recent exchange, even if the target is still exceeded afterward.
func (m *Manager) Compact() CompactionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.totalLocked()
	target := m.windowTokens - m.completionReserve
	if target <= 0 {
		target = m.windowTokens / 2
	}

	kept := m.keptSetLocked()
	candidates := make([]*Item, 0, len(m.items))
	candidateTokens := 0
	for _, item := range m.items {
		if item.Protected || kept[item] {
			continue
		}
		candidates = append(candidates, item)
		candidateTokens += item.Tokens
	}

	result := CompactionResult{TokensBefore: before, TokensAfter: before}
	if len(candidates) == 0 {
		return result
	}

	keptTokens := before - candidateTokens
	available := target - keptTokens
	ratio := 0.0
	if candidateTokens > 0 && available > 0 {
		ratio = float64(available) / float64(candidateTokens)
	}
	level := strategyForRatio(ratio)

	compressed := make(map[*Item]bool)
	for {
		// Oldest candidates first; recency is worth more than age.
		for _, item := range candidates {
			if m.totalLocked() <= target {
				break
			}
			next := compress(level, item.Content, item.Category)
			nextTokens := m.counter.Count(next)
			if nextTokens >= item.Tokens {
				continue
			}
			item.Content = next
			item.Tokens = nextTokens
			item.Tier = TierArchival
			compressed[item] = true
		}

		if m.totalLocked() <= target || level == StrategyEmergency {
			break
		}
		level++
	}

	result.TokensAfter = m.totalLocked()
	result.ItemsCompressed = len(compressed)
	result.Strategy = level
	m.logger.Debug("compaction: %d -> %d tokens (%d items, %s)",
		result.TokensBefore, result.TokensAfter, result.ItemsCompressed, level)
	return result
}

// keptSetLocked marks the items kept verbatim: everything belonging to the
// most recent keepRecentTurns user exchanges, and never less than the final
// exchange.
func (m *Manager) keptSetLocked() map[*Item]bool {
	kept := make(map[*Item]bool)
	turns := 0
	minKeep := m.keepRecentTurns
	if minKeep < 1 {
		minKeep = 1
	}

	for i := len(m.items) - 1; i >= 0; i-- {
		item := m.items[i]
		if item.Protected {
			continue
		}
		kept[item] = true
		if item.Category == CategoryUser {
			turns++
			if turns >= minKeep {
				break
			}
		}
	}
	return kept
}

// Summary returns a one-line description of the buffer state.
func (m *Manager) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return "empty context"
	}

	counts := make(map[Category]int)
	for _, item := range m.items {
		counts[item.Category]++
	}
	parts := make([]string, 0, len(counts))
	for _, c := range []Category{CategorySystem, CategoryUser, CategoryAssistant, CategoryToolResult} {
		if counts[c] > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", c, counts[c]))
		}
	}
	return fmt.Sprintf("%d items (%d tokens) - %s", len(m.items), m.totalLocked(), strings.Join(parts, ", "))
}
