// Package intent classifies raw user text into a category that carries a
// risk level, a tool allow-list, and a planning decision for the turn.
package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agentd/pkg/config"
	"agentd/pkg/llm"
	"agentd/pkg/logx"
	"agentd/pkg/proto"
)

// Conversational categories short-circuit planning entirely.
const (
	CategoryCapabilityQuery = "CAPABILITY_QUERY"
	CategoryGeneralChat     = "GENERAL_CHAT"
	CategoryCasualChat      = "CASUAL_CHAT"
	CategoryCodeRead        = "CODE_READ"
	CategoryCodeWrite       = "CODE_WRITE"
	CategoryShellTask       = "SHELL_TASK"
	CategoryUnknown         = "UNKNOWN"
)

// modelCategories is the fixed set the fallback classifier may return.
var modelCategories = map[string]bool{
	CategoryCapabilityQuery: true,
	CategoryGeneralChat:     true,
	CategoryCasualChat:      true,
	CategoryCodeRead:        true,
	CategoryCodeWrite:       true,
	CategoryShellTask:       true,
}

// Classification is the router's verdict for one user request.
type Classification struct {
	Category         string
	Confidence       float64
	MatchedKeywords  []string
	AllowedTools     []string
	Risk             proto.RiskLevel
	PlanningRequired bool
}

// Conversational reports whether the turn should skip planning and tool use.
func (c *Classification) Conversational() bool {
	switch c.Category {
	case CategoryCapabilityQuery, CategoryGeneralChat, CategoryCasualChat:
		return true
	}
	return false
}

// Classifier resolves intent from a rule table first and falls back to a
// model prompt when no rule matches.
type Classifier struct {
	rules  []ruleEntry
	client llm.Client
	logger *logx.Logger
}

type ruleEntry struct {
	rule     config.IntentRule
	keywords []string
}

// New compiles the rule table. The client may be nil, in which case unmatched
// text classifies as UNKNOWN with planning required.
func New(rules []config.IntentRule, client llm.Client) *Classifier {
	entries := make([]ruleEntry, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			kws = append(kws, strings.ToLower(k))
		}
		entries = append(entries, ruleEntry{rule: r, keywords: kws})
	}
	return &Classifier{
		rules:  entries,
		client: client,
		logger: logx.NewLogger("intent"),
	}
}

// Classify maps user text to a classification. Rule matches score by keyword
// hit count; the best-scoring rule wins. Confidence for rule matches scales
// with the fraction of the rule's keywords that hit.
func (c *Classifier) Classify(ctx context.Context, text string) (*Classification, error) {
	lower := strings.ToLower(text)

	bestScore := 0
	var best *ruleEntry
	var bestMatched []string
	for i := range c.rules {
		entry := &c.rules[i]
		var matched []string
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > bestScore {
			bestScore = len(matched)
			best = entry
			bestMatched = matched
		}
	}

	if best != nil {
		sort.Strings(bestMatched)
		cls := &Classification{
			Category:        best.rule.Category,
			Confidence:      float64(len(bestMatched)) / float64(max(len(best.keywords), 1)),
			MatchedKeywords: bestMatched,
			AllowedTools:    best.rule.AllowedTools,
			Risk:            proto.ParseRiskLevel(best.rule.Risk),
		}
		cls.PlanningRequired = best.rule.NeedsPlan && !cls.Conversational()
		c.logger.Debug("rule match: category=%s keywords=%v", cls.Category, bestMatched)
		return cls, nil
	}

	return c.classifyWithModel(ctx, text)
}

func (c *Classifier) classifyWithModel(ctx context.Context, text string) (*Classification, error) {
	if c.client == nil {
		return &Classification{
			Category:         CategoryUnknown,
			Confidence:       0,
			Risk:             proto.RiskMedium,
			PlanningRequired: true,
		}, nil
	}

	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(classifySystemPrompt),
			llm.NewUserMessage(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("intent classification model call failed: %w", err)
	}

	category := strings.ToUpper(strings.TrimSpace(resp.Content))
	// Models sometimes wrap the answer in prose; take the first known token.
	if !modelCategories[category] {
		for _, word := range strings.Fields(category) {
			word = strings.Trim(word, ".,:;\"'`")
			if modelCategories[word] {
				category = word
				break
			}
		}
	}
	if !modelCategories[category] {
		c.logger.Warn("model returned unknown category %q, treating as UNKNOWN", category)
		category = CategoryUnknown
	}

	cls := &Classification{
		Category:   category,
		Confidence: 0.5,
		Risk:       defaultRiskFor(category),
	}
	cls.PlanningRequired = !cls.Conversational() && category != CategoryCodeRead
	c.logger.Debug("model classification: category=%s", category)
	return cls, nil
}

func defaultRiskFor(category string) proto.RiskLevel {
	switch category {
	case CategoryCapabilityQuery, CategoryGeneralChat, CategoryCasualChat, CategoryCodeRead:
		return proto.RiskLow
	case CategoryCodeWrite:
		return proto.RiskMedium
	case CategoryShellTask:
		return proto.RiskHigh
	default:
		return proto.RiskMedium
	}
}

const classifySystemPrompt = `Classify the user request into exactly one category. Reply with only the category name.

Categories:
- CAPABILITY_QUERY: asking what this assistant can do
- GENERAL_CHAT: general question unrelated to the workspace
- CASUAL_CHAT: greeting or small talk
- CODE_READ: understand or explain code without changing it
- CODE_WRITE: create or modify code or files
- SHELL_TASK: run commands, builds, tests, or system operations`
