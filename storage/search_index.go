package storage

import (
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"groupchat/model"
)

const (
	previewWidth = 100
	// substring hits outrank scattered fuzzy hits
	substringBonus = 1000
)

// MessageMatch is one search hit.
type MessageMatch struct {
	Message model.Message `json:"message"`
	Preview string        `json:"preview"`
	Score   int           `json:"score"`
}

// SearchMessages ranks the finished human and AI messages in msgs against
// query. Messages containing the query verbatim (ignoring case) rank first;
// fuzzy subsequence matches follow. Ties keep the newest message first.
func SearchMessages(msgs []model.Message, query string, limit int) []MessageMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return []MessageMatch{}
	}

	candidates := make([]model.Message, 0, len(msgs))
	targets := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind == model.KindSystem || m.IsPlaceholder || m.IsSuppressed {
			continue
		}
		candidates = append(candidates, m)
		targets = append(targets, m.Content)
	}

	queryLower := strings.ToLower(query)
	matches := make([]MessageMatch, 0)
	for _, fm := range fuzzy.Find(query, targets) {
		m := candidates[fm.Index]
		score := fm.Score
		if strings.Contains(strings.ToLower(m.Content), queryLower) {
			score += substringBonus
		}
		matches = append(matches, MessageMatch{Message: m, Preview: preview(m.Content), Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Message.Timestamp.After(matches[j].Message.Timestamp)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// preview flattens content to one line and truncates it by display width.
func preview(content string) string {
	line := strings.Join(strings.Fields(content), " ")
	return runewidth.Truncate(line, previewWidth, "...")
}
