package detect

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	primaryWeight    = 3
	secondaryWeight  = 3
	contextualWeight = 1
	patternWeight    = 2
)

// Lexicon holds the normalized phrase lists and patterns used for scoring.
// A Lexicon is immutable after construction and safe for concurrent use.
type Lexicon struct {
	primary    []string
	secondary  []string
	contextual []string
	patterns   []*regexp.Regexp
}

// LexiconConfig is the raw (unnormalized) form of a Lexicon
type LexiconConfig struct {
	Primary    []string `yaml:"primary"`
	Secondary  []string `yaml:"secondary"`
	Contextual []string `yaml:"contextual"`
	Patterns   []string `yaml:"patterns"`
}

// DefaultLexiconConfig returns the built-in Portuguese prayer-request vocabulary
func DefaultLexiconConfig() LexiconConfig {
	return LexiconConfig{
		Primary: []string{
			"ore por", "oração por", "orem por", "orar por", "peço oração",
			"pedido de oração", "por favor orem", "intercedam por", "intercessão por",
		},
		Secondary: []string{
			"preciso de oração", "necessito de oração", "por favor ore",
			"oração para", "ore pela", "ore pelo", "orem pela", "orem pelo",
		},
		Contextual: []string{
			"saúde", "doença", "hospital", "cirurgia", "família", "problema",
			"dificuldade", "cura", "libertação", "restauração", "provisão",
			"financeiro", "emprego", "trabalho", "preciso", "ajuda", "socorro",
		},
		// Patterns run against normalized text, so literals are written without accents
		Patterns: []string{
			`ore(?:m)?\s+por\s+(?:meu|minha|o|a|os|as)?\s+([^\s,\.]+)`,
			`peco\s+oracao\s+(?:para|por|pela|pelo)\s+(?:meu|minha|o|a|os|as)?\s+([^\s,\.]+)`,
			`preciso\s+de\s+oracao\s+(?:para|por)\s+([^\s,\.]+)`,
			`(?:por\s+favor\s+)?(?:ore|orem|oracao)\s+(?:para|por|pela|pelo)\s+([^\s,\.]+)`,
		},
	}
}

// NewLexicon normalizes every term and compiles every pattern.
// Empty terms are dropped; duplicate contextual terms are counted once.
func NewLexicon(cfg LexiconConfig) (*Lexicon, error) {
	lex := &Lexicon{
		primary:    normalizeTerms(cfg.Primary),
		secondary:  normalizeTerms(cfg.Secondary),
		contextual: normalizeTerms(cfg.Contextual),
	}

	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		lex.patterns = append(lex.patterns, re)
	}

	return lex, nil
}

// DefaultLexicon returns the built-in lexicon
func DefaultLexicon() *Lexicon {
	lex, err := NewLexicon(DefaultLexiconConfig())
	if err != nil {
		panic(err)
	}
	return lex
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		n := Normalize(term)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// MatchScore scores already-normalized text
func (l *Lexicon) MatchScore(normalized string) int {
	score := 0

	if containsAny(normalized, l.primary) {
		score += primaryWeight
	}
	if containsAny(normalized, l.secondary) {
		score += secondaryWeight
	}
	for _, term := range l.contextual {
		if strings.Contains(normalized, term) {
			score += contextualWeight
		}
	}
	if l.matchesPattern(normalized) {
		score += patternWeight
	}

	return score
}

func (l *Lexicon) matchesPattern(normalized string) bool {
	for _, re := range l.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
