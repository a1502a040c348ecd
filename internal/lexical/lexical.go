// Package lexical implements the Hybrid Retrieval Engine's keyword
// candidate channel: a TF-IDF-weighted scan over a tenant's records, run
// in-process against whatever the record store already holds in memory
// or returns from a listing query. No inverted-index library appears
// anywhere in the reference corpus this engine was grounded on, so this
// is a deliberately small, dependency-free scorer rather than an attempt
// at a production full-text engine; internal/retrieval treats it as one
// interchangeable candidate channel among three and degrades cleanly if
// it is ever swapped for a real search backend.
package lexical

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/dreamsoft-pro/rae/internal/retrieval"
	"github.com/dreamsoft-pro/rae/internal/storage"
)

// Searcher scores records by term-frequency/inverse-document-frequency
// overlap with a free-text query. It satisfies retrieval.LexicalSearcher.
type Searcher struct {
	records storage.RecordStore

	mu    sync.Mutex
	idf   map[string]map[string]float64 // tenant -> term -> idf
	docs  map[string]int                // tenant -> document count at last index build
}

// New builds a Searcher backed by records. The term index is rebuilt
// lazily per tenant on first use and whenever the tenant's record count
// changes, rather than maintained incrementally on every write — index
// staleness only ever softens ranking quality, never correctness, since
// Search always re-reads current record content for scoring.
func New(records storage.RecordStore) *Searcher {
	return &Searcher{
		records: records,
		idf:     make(map[string]map[string]float64),
		docs:    make(map[string]int),
	}
}

// Search returns the topK records in tenantKey whose content shares the
// most TF-IDF-weighted terms with query.
func (s *Searcher) Search(ctx context.Context, tenantKey, query string, topK int) ([]retrieval.Candidate, error) {
	if topK <= 0 {
		topK = 50
	}
	recs, err := s.records.ListRecords(ctx, tenantKey, storage.Filter{})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	idf := s.idfFor(tenantKey, recs)
	queryTerms := termFreq(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	type scored struct {
		id    string
		score float64
	}
	out := make([]scored, 0, len(recs))
	for _, rec := range recs {
		docTerms := termFreq(rec.Content)
		if len(docTerms) == 0 {
			continue
		}
		var score float64
		for term, qtf := range queryTerms {
			dtf, ok := docTerms[term]
			if !ok {
				continue
			}
			score += qtf * dtf * idf[term]
		}
		if score > 0 {
			out = append(out, scored{id: rec.ID, score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	if len(out) > topK {
		out = out[:topK]
	}

	cands := make([]retrieval.Candidate, len(out))
	for i, o := range out {
		cands[i] = retrieval.Candidate{MemoryID: o.id, Score: o.score}
	}
	return cands, nil
}

// idfFor returns the tenant's term->idf table, rebuilding it if the
// tenant's document count has moved since the last build.
func (s *Searcher) idfFor(tenantKey string, recs []storage.Record) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[tenantKey] == len(recs) {
		if table, ok := s.idf[tenantKey]; ok {
			return table
		}
	}

	docFreq := make(map[string]int)
	for _, rec := range recs {
		seen := make(map[string]bool)
		for term := range termFreq(rec.Content) {
			if !seen[term] {
				docFreq[term]++
				seen[term] = true
			}
		}
	}

	n := float64(len(recs))
	table := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		table[term] = math.Log(1 + n/float64(df))
	}

	s.idf[tenantKey] = table
	s.docs[tenantKey] = len(recs)
	return table
}

// termFreq returns a lowercased, whitespace-tokenized term->frequency map
// normalized by document length.
func termFreq(text string) map[string]float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if w == "" {
			continue
		}
		counts[w]++
	}
	for w := range counts {
		counts[w] /= float64(len(words))
	}
	return counts
}
