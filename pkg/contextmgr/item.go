// Package contextmgr manages the ordered conversation buffer under a token
// budget. Items are appended by the executor through this API and evicted or
// compressed only here; protected items are never touched.
package contextmgr

import "time"

// Tier is the eviction priority of a context item. Lower tiers are
// compressed first.
type Tier int

const (
	// TierProtected items (system prompt) are never evicted or compressed.
	TierProtected Tier = iota
	// TierRecent covers the most recent conversation turns, kept verbatim.
	TierRecent
	// TierWorking covers the active step's exchanges.
	TierWorking
	// TierRelevant covers retrieved reference material.
	TierRelevant
	// TierArchival covers already-compressed leftovers.
	TierArchival
)

// String returns the canonical tier name.
func (t Tier) String() string {
	switch t {
	case TierProtected:
		return "protected"
	case TierRecent:
		return "recent"
	case TierWorking:
		return "working"
	case TierRelevant:
		return "relevant"
	case TierArchival:
		return "archival"
	default:
		return "unknown"
	}
}

// Category identifies the conversational role of an item.
type Category string

const (
	CategorySystem     Category = "system"
	CategoryUser       Category = "user"
	CategoryAssistant  Category = "assistant"
	CategoryToolResult Category = "tool_result"
)

// Item is one entry in the conversation buffer. Items are exclusively owned
// by the Manager; callers receive copies.
type Item struct {
	Content   string
	Tier      Tier
	Tokens    int
	Category  Category
	CreatedAt time.Time
	Protected bool
}
