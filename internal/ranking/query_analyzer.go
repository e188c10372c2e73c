package ranking

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// SourceRules marks an analysis produced by RuleAnalyzer.
const SourceRules = "rules"

var (
	whatAreKinds   = regexp.MustCompile(`\bwhat (are|is) (the )?(\w+ )*(kinds|types|options|features|ways)\b`)
	whichAvailable = regexp.MustCompile(`\bwhich (\w+ )+(are|is) (\w+ )?available\b`)
)

// RuleAnalyzer classifies queries with keyword rules. It is deterministic and
// never fails.
type RuleAnalyzer struct {
	minLevel  int
	maxLevel  int
	topics    []topicRule
	technical map[string]struct{}
}

type topicRule struct {
	name     string
	triggers []string
}

// NewRuleAnalyzer creates a rule analyzer from config. A nil config uses defaults.
func NewRuleAnalyzer(config *RankingConfig) *RuleAnalyzer {
	if config == nil {
		config = DefaultRankingConfig()
	}
	a := &RuleAnalyzer{
		minLevel:  config.TechnicalLevelMin,
		maxLevel:  config.TechnicalLevelMax,
		technical: make(map[string]struct{}, len(config.TechnicalTerms)),
	}
	if a.minLevel <= 0 {
		a.minLevel = models.TechnicalLevelMin
	}
	if a.maxLevel < a.minLevel {
		a.maxLevel = models.TechnicalLevelMax
	}
	for _, t := range config.TechnicalTerms {
		a.technical[strings.ToLower(t)] = struct{}{}
	}
	for name, triggers := range config.Topics {
		lowered := make([]string, len(triggers))
		for i, t := range triggers {
			lowered[i] = strings.ToLower(t)
		}
		a.topics = append(a.topics, topicRule{name: strings.ToLower(name), triggers: lowered})
	}
	sort.Slice(a.topics, func(i, j int) bool { return a.topics[i].name < a.topics[j].name })
	return a
}

// Analyze implements Analyzer.
func (a *RuleAnalyzer) Analyze(_ context.Context, query string) (*models.QueryAnalysis, error) {
	text := cleanQuery(query)
	tokens := utils.Tokenize(query)

	techTerms := 0
	for _, t := range tokens {
		if _, ok := a.technical[t]; ok {
			techTerms++
		}
	}

	level := (a.minLevel + a.maxLevel) / 2
	level += techTerms
	for _, p := range simplePhrases {
		if containsPhrase(text, p) {
			level--
		}
	}

	return &models.QueryAnalysis{
		TechnicalLevel: utils.Clamp(level, a.minLevel, a.maxLevel),
		Format:         detectFormat(text),
		Complexity:     complexity(text, len(tokens), techTerms),
		Topics:         a.detectTopics(text),
		Urgency:        detectUrgency(text),
		Source:         SourceRules,
	}, nil
}

func (a *RuleAnalyzer) detectTopics(text string) []string {
	var out []string
	for _, rule := range a.topics {
		for _, trig := range rule.triggers {
			if strings.Contains(text, trig) {
				out = append(out, rule.name)
				break
			}
		}
	}
	return out
}

func detectFormat(text string) models.AnswerFormat {
	switch {
	case containsAny(text, tablePhrases):
		return models.FormatTable
	case containsAny(text, stepPhrases):
		return models.FormatSteps
	case containsAny(text, listPhrases) || whatAreKinds.MatchString(text) || whichAvailable.MatchString(text):
		return models.FormatList
	default:
		return models.FormatFreeText
	}
}

func detectUrgency(text string) models.Urgency {
	switch {
	case containsAny(text, highUrgencyPhrases):
		return models.UrgencyHigh
	case containsAny(text, elevatedUrgencyPhrases):
		return models.UrgencyElevated
	default:
		return models.UrgencyNormal
	}
}

func complexity(text string, tokens, techTerms int) float64 {
	clauses := 0
	for _, m := range clauseMarkers {
		clauses += strings.Count(text, m)
	}
	return min(1.0, float64(tokens)/20+0.15*float64(clauses)+0.1*float64(techTerms))
}

// cleanQuery lowercases q, maps punctuation other than commas and hyphens to
// spaces and collapses whitespace.
func cleanQuery(q string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ',' || r == '-' {
			return unicode.ToLower(r)
		}
		return ' '
	}, q)
	return strings.Join(strings.Fields(strings.ReplaceAll(mapped, ",", " , ")), " ")
}

func containsPhrase(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}
