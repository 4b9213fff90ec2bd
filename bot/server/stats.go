package server

import (
	"fmt"
	"strings"
)

// TopPost is one entry of the downloads leaderboard.
type TopPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Downloads int    `json:"downloads"`
}

// Stats is a snapshot of the bot's state.
type Stats struct {
	Posts              int              `json:"posts"`
	Users              int              `json:"users"`
	Banned             int              `json:"banned"`
	Downloads          int              `json:"downloads"`
	PendingSuggestions int              `json:"pending_suggestions"`
	Top                []TopPost        `json:"top"`
	Counters           CountersSnapshot `json:"counters"`
}

// Stats returns current statistics.
func (s *Server) Stats() Stats {
	rs := s.cfg.Posts.Stats(TopPostsCount)
	st := Stats{
		Posts:     rs.Posts,
		Users:     s.cfg.Users.Count(),
		Banned:    s.cfg.Users.BannedCount(),
		Downloads: rs.Downloads,
		Counters:  s.counters.Snapshot(),
	}
	if s.cfg.Suggestions != nil {
		st.PendingSuggestions = s.cfg.Suggestions.PendingCount()
	}
	for _, p := range rs.Top {
		st.Top = append(st.Top, TopPost{ID: p.ID, Title: p.Title, Downloads: p.Downloads})
	}
	return st
}

func formatStats(st Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Statistics\n\n")
	fmt.Fprintf(&b, "📦 Posts: %d\n", st.Posts)
	fmt.Fprintf(&b, "👥 Users: %d\n", st.Users)
	fmt.Fprintf(&b, "📥 Downloads: %d\n", st.Downloads)
	fmt.Fprintf(&b, "🚫 Banned: %d\n", st.Banned)
	fmt.Fprintf(&b, "💡 Pending suggestions: %d\n", st.PendingSuggestions)
	if len(st.Top) > 0 {
		b.WriteString("\n🏆 Top posts:\n")
		for i, p := range st.Top {
			fmt.Fprintf(&b, "%d. %s (%d)\n", i+1, p.Title, p.Downloads)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
