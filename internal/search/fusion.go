package search

import (
	"sort"

	"github.com/google/uuid"
)

// Fuse combines lexical and semantic matches into one ranked list (spec
// §4.12): reciprocal rank fusion over three ranked views of the combined
// candidate set (lexical by lexical_score, semantic by distance, and
// trigram by trigram_score restricted to lexical rows with trigram > 0),
// plus two synthetic boost passes for canonical and pinned items.
func Fuse(lexical []LexicalMatch, semantic []SemanticMatch, opts FusionOptions) []Match {
	acc := map[uuid.UUID]*accumulator{}
	order := []uuid.UUID{} // first-seen order, used only to make map iteration below irrelevant

	get := func(id uuid.UUID) *accumulator {
		if a, ok := acc[id]; ok {
			return a
		}
		a := &accumulator{chunkID: id}
		acc[id] = a
		order = append(order, id)
		return a
	}

	lexByScore := append([]LexicalMatch(nil), lexical...)
	sort.SliceStable(lexByScore, func(i, j int) bool { return lexByScore[i].LexicalScore > lexByScore[j].LexicalScore })
	for rank, m := range lexByScore {
		a := get(m.ChunkID)
		a.lexical = &m
		a.score += opts.Weights.Lexical / float64(opts.K+rank+1)
	}

	semByDistance := append([]SemanticMatch(nil), semantic...)
	sort.SliceStable(semByDistance, func(i, j int) bool { return semByDistance[i].Distance < semByDistance[j].Distance })
	for rank, m := range semByDistance {
		a := get(m.ChunkID)
		a.semantic = &m
		a.score += opts.Weights.Semantic / float64(opts.K+rank+1)
	}

	trigramRows := make([]LexicalMatch, 0, len(lexical))
	for _, m := range lexical {
		if m.TrigramScore > 0 {
			trigramRows = append(trigramRows, m)
		}
	}
	sort.SliceStable(trigramRows, func(i, j int) bool { return trigramRows[i].TrigramScore > trigramRows[j].TrigramScore })
	for rank, m := range trigramRows {
		a := get(m.ChunkID)
		a.score += opts.Weights.Trigram / float64(opts.K+rank+1)
	}

	// Two synthetic boost passes: canonical items and pinned items each
	// form their own stably-ordered (by chunk_id) ranked list over the
	// combined candidate set, contributing via the same 1/(k+rank) shape.
	combined := make([]uuid.UUID, len(order))
	copy(combined, order)
	sort.Slice(combined, func(i, j int) bool { return combined[i].String() < combined[j].String() })

	canonical := filterIDs(combined, func(id uuid.UUID) bool { return itemOf(acc[id]).CanonicalKey != nil })
	for rank, id := range canonical {
		acc[id].score += opts.CanonicalBoost / float64(opts.K+rank+1)
	}
	pinned := filterIDs(combined, func(id uuid.UUID) bool { return itemOf(acc[id]).Pinned })
	for rank, id := range pinned {
		acc[id].score += opts.PinnedBoost / float64(opts.K+rank+1)
	}

	matches := make([]Match, 0, len(acc))
	for _, id := range order {
		matches = append(matches, acc[id].toMatch())
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Item.ItemID != matches[j].Item.ItemID {
			return matches[i].Item.ItemID.String() < matches[j].Item.ItemID.String()
		}
		return matches[i].ChunkID.String() < matches[j].ChunkID.String()
	})
	return matches
}

type accumulator struct {
	chunkID  uuid.UUID
	score    float64
	lexical  *LexicalMatch
	semantic *SemanticMatch
}

func itemOf(a *accumulator) ItemSummary {
	if a.lexical != nil {
		return a.lexical.Item
	}
	return a.semantic.Item
}

func (a *accumulator) toMatch() Match {
	m := Match{ChunkID: a.chunkID, Score: a.score}
	if a.lexical != nil {
		m.Item = a.lexical.Item
		m.HeadingPath = a.lexical.HeadingPath
		m.SectionAnchor = a.lexical.SectionAnchor
		m.Excerpt = a.lexical.Excerpt
		m.LexicalScore = a.lexical.LexicalScore
		m.TrigramScore = a.lexical.TrigramScore
	}
	if a.semantic != nil {
		m.Item = a.semantic.Item
		if m.HeadingPath == nil {
			m.HeadingPath = a.semantic.HeadingPath
		}
		if m.SectionAnchor == nil {
			m.SectionAnchor = a.semantic.SectionAnchor
		}
		if m.Excerpt == "" {
			m.Excerpt = a.semantic.Excerpt
		}
		d := a.semantic.Distance
		m.Distance = &d
	}
	return m
}

func filterIDs(ids []uuid.UUID, keep func(uuid.UUID) bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}

// GroupByItem groups fused matches by item, keeping up to maxPerItem
// highest-scoring chunks per item and ordering items by their top chunk's
// score (spec §4.13), with a stable item_id tie-break.
func GroupByItem(matches []Match, maxPerItem int) []ItemResult {
	order := []uuid.UUID{}
	byItem := map[uuid.UUID]*ItemResult{}
	for _, m := range matches {
		r, ok := byItem[m.Item.ItemID]
		if !ok {
			r = &ItemResult{Item: m.Item}
			byItem[m.Item.ItemID] = r
			order = append(order, m.Item.ItemID)
		}
		if len(r.Matches) < maxPerItem {
			r.Matches = append(r.Matches, m)
		}
	}

	results := make([]ItemResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byItem[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := topScore(results[i]), topScore(results[j])
		if si != sj {
			return si > sj
		}
		return results[i].Item.ItemID.String() < results[j].Item.ItemID.String()
	})
	return results
}

func topScore(r ItemResult) float64 {
	if len(r.Matches) == 0 {
		return 0
	}
	return r.Matches[0].Score
}
