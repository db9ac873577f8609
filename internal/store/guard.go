package store

import (
	"log/slog"

	"github.com/starford/raido/internal/domain"
)

// Admit scans candidates in order and keeps the first occurrence of each id,
// reporting the rest as duplicates. It never fails: the returned slice is
// always a valid deduplicated collection.
//
// Concurrent sources (local create, push-channel create, bulk reload) can
// independently introduce the same id; this guard runs on every bulk load
// and defensively after merges so two live records never diverge under one id.
func Admit(candidates []*domain.Initiative, logger *slog.Logger) ([]*domain.Initiative, []string) {
	seen := make(map[string]struct{}, len(candidates))
	clean := make([]*domain.Initiative, 0, len(candidates))
	var duplicates []string

	for _, c := range candidates {
		if c == nil || c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			duplicates = append(duplicates, c.ID)
			continue
		}
		seen[c.ID] = struct{}{}
		clean = append(clean, c)
	}

	if len(duplicates) > 0 && logger != nil {
		logger.Warn("identity guard: duplicate ids dropped",
			slog.Int("count", len(duplicates)),
			slog.Any("ids", duplicates))
	}
	return clean, duplicates
}
