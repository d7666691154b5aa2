// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"cmp"
	"slices"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// SourceGroup collects the passages of one origin document.
type SourceGroup struct {
	Source    string          `json:"source" yaml:"source"`
	MaxScore  float64         `json:"max_score" yaml:"max_score"`
	MeanScore float64         `json:"mean_score" yaml:"mean_score"`
	Passages  []types.Passage `json:"passages" yaml:"passages"`
}

// GroupBySource buckets passages per source, keeping their input order inside
// each group. Groups are ordered by best score, then by source name.
func GroupBySource(passages []types.Passage) []SourceGroup {
	index := make(map[string]int)
	var groups []SourceGroup

	for _, p := range passages {
		i, ok := index[p.Source]
		if !ok {
			i = len(groups)
			index[p.Source] = i
			groups = append(groups, SourceGroup{Source: p.Source, MaxScore: p.Score})
		}
		g := &groups[i]
		g.Passages = append(g.Passages, p)
		g.MaxScore = max(g.MaxScore, p.Score)
	}

	for i := range groups {
		sum := 0.0
		for _, p := range groups[i].Passages {
			sum += p.Score
		}
		groups[i].MeanScore = sum / float64(len(groups[i].Passages))
	}

	slices.SortFunc(groups, func(a, b SourceGroup) int {
		if c := cmp.Compare(b.MaxScore, a.MaxScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Source, b.Source)
	})
	return groups
}
