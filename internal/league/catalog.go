// Package league holds the catalog of leagues an operator can monitor.
package league

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"gopkg.in/yaml.v3"

	"halftime_bot/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

const (
	// minFuzzyQuery is the shortest query Resolve matches approximately.
	minFuzzyQuery = 3
	// maxTypoDistance bounds the Levenshtein fallback of Resolve.
	maxTypoDistance = 2
	// minTypoSimilarity is the lowest 1-distance/length accepted as a typo.
	minTypoSimilarity = 0.6
)

// Lookup errors.
var (
	ErrUnknownLeague   = errors.New("unknown league")
	ErrAmbiguousLeague = errors.New("ambiguous league")
)

// Catalog is an ordered, read-only set of leagues indexed by key.
type Catalog struct {
	leagues []model.League
	index   map[string]int
}

type catalogFile struct {
	Leagues []model.League `yaml:"leagues"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Leagues) == 0 {
		return nil, fmt.Errorf("catalog has no leagues")
	}

	c := &Catalog{index: make(map[string]int, len(f.Leagues))}
	for _, l := range f.Leagues {
		l.Key = strings.ToLower(strings.TrimSpace(l.Key))
		if l.Key == "" {
			return nil, fmt.Errorf("league %q has no key", l.Name)
		}
		if l.Category == "" {
			return nil, fmt.Errorf("league %q has no category", l.Key)
		}
		if _, dup := c.index[l.Key]; dup {
			return nil, fmt.Errorf("duplicate league key %q", l.Key)
		}
		if l.Name == "" {
			l.Name = l.Key
		}
		c.index[l.Key] = len(c.leagues)
		c.leagues = append(c.leagues, l)
	}
	return c, nil
}

// All returns every league in catalog order.
func (c *Catalog) All() []model.League {
	out := make([]model.League, len(c.leagues))
	copy(out, c.leagues)
	return out
}

// Keys returns every league key in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.leagues))
	for i, l := range c.leagues {
		keys[i] = l.Key
	}
	return keys
}

// Get returns the league with the given key.
func (c *Catalog) Get(key string) (model.League, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return model.League{}, false
	}
	return c.leagues[i], true
}

// Select returns the leagues for the given keys in catalog order.
// Unknown keys are skipped.
func (c *Catalog) Select(keys map[string]struct{}) []model.League {
	var out []model.League
	for _, l := range c.leagues {
		if _, ok := keys[l.Key]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Resolve finds the league an operator means by query: an exact key, an
// exact display name, a fuzzy name match, or a key with a small typo.
func (c *Catalog) Resolve(query string) (model.League, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return model.League{}, ErrUnknownLeague
	}
	if l, ok := c.Get(q); ok {
		return l, nil
	}

	names := make([]string, len(c.leagues))
	for i, l := range c.leagues {
		if strings.EqualFold(l.Name, q) {
			return l, nil
		}
		names[i] = l.Name
	}

	if len([]rune(q)) < minFuzzyQuery {
		return model.League{}, fmt.Errorf("%w: %q", ErrUnknownLeague, q)
	}

	var ranks fuzzy.Ranks
	for _, r := range fuzzy.RankFindNormalizedFold(q, names) {
		if wordPrefixMatch(q, r.Target) {
			ranks = append(ranks, r)
		}
	}
	if len(ranks) > 0 {
		sort.Sort(ranks)
		if len(ranks) > 1 && ranks[0].Distance == ranks[1].Distance {
			return model.League{}, fmt.Errorf("%w: %q matches %s and %s",
				ErrAmbiguousLeague, q, ranks[0].Target, ranks[1].Target)
		}
		return c.leagues[ranks[0].OriginalIndex], nil
	}

	lq := strings.ToLower(q)
	best, bestDist := -1, maxTypoDistance+1
	for i, l := range c.leagues {
		d := fuzzy.LevenshteinDistance(lq, l.Key)
		similarity := 1 - float64(d)/float64(max(len(lq), len(l.Key)))
		if d < bestDist && similarity >= minTypoSimilarity {
			best, bestDist = i, d
		}
	}
	if best >= 0 {
		return c.leagues[best], nil
	}
	return model.League{}, fmt.Errorf("%w: %q", ErrUnknownLeague, q)
}

// wordPrefixMatch reports whether every word of query starts a word of name.
func wordPrefixMatch(query, name string) bool {
	words := strings.Fields(strings.ToLower(name))
	for _, qw := range strings.Fields(strings.ToLower(query)) {
		found := false
		for _, w := range words {
			if strings.HasPrefix(w, qw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
