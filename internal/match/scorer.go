// Package match ranks payment candidates for an ambiguous SMS by lexical
// overlap between the message text and each candidate's reference fields.
// It never filters: candidate selection stays an exact amount-and-currency
// query upstream, and this package only decides the order an operator sees
// equally-plausible candidates in.
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable scorer after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// candidate's token set: score = |Q ∩ C| / |Q ∪ C|.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Candidate is one payment up for ranking. Text carries the reference
// material known about the payment (order id, payer annotations, metadata
// strings) joined into a single string.
type Candidate struct {
	ID   string
	Text string
}

// Ranked is a candidate with its similarity score against the query.
type Ranked struct {
	ID    string
	Score float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minTokenRunes int
	stopwords     map[string]struct{}
}

func defaultConfig() config {
	return config{
		minTokenRunes: 2,
		stopwords:     nil,
	}
}

// WithMinTokenRunes sets the minimum token length; shorter tokens are
// dropped before scoring. Zero keeps everything.
func WithMinTokenRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minTokenRunes = n
		}
	}
}

// WithStopwords drops the given words from every token set. Useful for
// boilerplate the gateway repeats in every message ("received", "from").
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

// Scorer computes lexical similarity between SMS text and candidate
// reference text. The zero value is not usable; construct with NewScorer.
type Scorer struct {
	cfg config
}

// NewScorer builds a Scorer with the given options applied over defaults.
func NewScorer(opts ...Option) *Scorer {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Scorer{cfg: cfg}
}

// Similarity returns the Jaccard similarity of the two strings' token
// sets, in [0,1]. Either side tokenizing to nothing scores zero.
func (s *Scorer) Similarity(a, b string) float64 {
	ta := tokenize(a, s.cfg)
	tb := tokenize(b, s.cfg)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	over := overlap(ta, tb)
	union := float64(len(ta) + len(tb) - over)
	if union <= 0 {
		return 0
	}
	return float64(over) / union
}

// Rank scores every candidate against the query and returns all of them,
// best first. Ties keep the caller's order, so a store-ordered input stays
// store-ordered among equals. Zero-score candidates are kept: ranking
// orders the shortlist, it never shrinks it.
func (s *Scorer) Rank(query string, cands []Candidate) []Ranked {
	if len(cands) == 0 {
		return nil
	}
	qTokens := tokenize(query, s.cfg)

	out := make([]Ranked, len(cands))
	for i, c := range cands {
		score := 0.0
		if len(qTokens) > 0 {
			cTokens := tokenize(c.Text, s.cfg)
			if over := overlap(qTokens, cTokens); over > 0 {
				union := float64(len(qTokens) + len(cTokens) - over)
				if union > 0 {
					score = float64(over) / union
				}
			}
		}
		out[i] = Ranked{ID: c.ID, Score: score}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

// ----------------------------------------------------------------------------
// Helpers

// Reference tokens in payment SMS are frequently digit-led ("0788...",
// "TX12345"), so tokens may start with a number.
var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string, cfg config) map[string]struct{} {
	s = strings.ToLower(s)
	words := tokenRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if cfg.minTokenRunes > 0 && utf8.RuneCountInString(w) < cfg.minTokenRunes {
			continue
		}
		if cfg.stopwords != nil {
			if _, skip := cfg.stopwords[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
