package detect

// Tier is the ordinal likelihood that a message is a prayer request
type Tier int

// Tier values, ordered from least to most likely.
const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// TierForScore maps a score onto its tier: 0 None, 1 Low, 2-3 Medium, 4+ High.
// Negative scores cannot be produced by MatchScore and map to None.
func TierForScore(score int) Tier {
	switch {
	case score >= 4:
		return TierHigh
	case score >= 2:
		return TierMedium
	case score == 1:
		return TierLow
	default:
		return TierNone
	}
}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "High"
	case TierMedium:
		return "Medium"
	case TierLow:
		return "Low"
	default:
		return "None"
	}
}

// Label is the tier name written to sinks
func (t Tier) Label() string {
	switch t {
	case TierHigh:
		return "Alta"
	case TierMedium:
		return "Média"
	case TierLow:
		return "Baixa"
	default:
		return "Nenhuma"
	}
}

// ParseTier accepts either the English name or the sink label, case-sensitively
func ParseTier(s string) (Tier, bool) {
	for _, t := range []Tier{TierNone, TierLow, TierMedium, TierHigh} {
		if s == t.String() || s == t.Label() {
			return t, true
		}
	}
	return TierNone, false
}

// Result is the outcome of classifying one message
type Result struct {
	Score int
	Tier  Tier
}

// Detected reports whether the message should be forwarded downstream
func (r Result) Detected() bool {
	return r.Tier != TierNone
}

// Classifier scores raw chat text against a Lexicon
type Classifier struct {
	lexicon *Lexicon
}

// NewClassifier creates a classifier; a nil lexicon selects DefaultLexicon
func NewClassifier(lex *Lexicon) *Classifier {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Classifier{lexicon: lex}
}

// Classify normalizes text and scores it. It never fails.
func (c *Classifier) Classify(text string) Result {
	score := c.lexicon.MatchScore(Normalize(text))
	return Result{Score: score, Tier: TierForScore(score)}
}
