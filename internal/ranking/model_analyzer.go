package ranking

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// SourceModel marks an analysis refined by a Classifier.
const SourceModel = "model"

// Classifier asks a language model to classify a query. Zero-valued fields in
// the result mean "no opinion".
type Classifier interface {
	Classify(ctx context.Context, query string) (*models.QueryAnalysis, error)
}

// ModelAnalyzer runs the rule analyzer, then lets a Classifier override the
// fields it has an opinion on. Classifier errors and timeouts fall back to the
// rule result.
type ModelAnalyzer struct {
	rules      Analyzer
	classifier Classifier
	timeout    time.Duration
	minLevel   int
	maxLevel   int
	logger     *zap.Logger
}

// ModelAnalyzerOption configures a ModelAnalyzer.
type ModelAnalyzerOption func(*ModelAnalyzer)

// WithClassifierTimeout bounds each classifier call.
func WithClassifierTimeout(d time.Duration) ModelAnalyzerOption {
	return func(m *ModelAnalyzer) { m.timeout = d }
}

// WithAnalyzerLogger sets the logger used for fallback warnings.
func WithAnalyzerLogger(l *zap.Logger) ModelAnalyzerOption {
	return func(m *ModelAnalyzer) { m.logger = l }
}

// NewModelAnalyzer creates a ModelAnalyzer.
func NewModelAnalyzer(config *RankingConfig, rules Analyzer, classifier Classifier, opts ...ModelAnalyzerOption) *ModelAnalyzer {
	if config == nil {
		config = DefaultRankingConfig()
	}
	m := &ModelAnalyzer{
		rules:      rules,
		classifier: classifier,
		timeout:    5 * time.Second,
		minLevel:   config.TechnicalLevelMin,
		maxLevel:   config.TechnicalLevelMax,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = utils.OrNop(m.logger)
	return m
}

// Analyze implements Analyzer.
func (m *ModelAnalyzer) Analyze(ctx context.Context, query string) (*models.QueryAnalysis, error) {
	base, err := m.rules.Analyze(ctx, query)
	if err != nil {
		return nil, err
	}
	if m.classifier == nil {
		return base, nil
	}

	cctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	res, err := m.classifier.Classify(cctx, query)
	if err != nil || res == nil {
		m.logger.Warn("query classifier failed, using rule analysis", zap.Error(err))
		return base, nil
	}
	return m.merge(base, res), nil
}

func (m *ModelAnalyzer) merge(base, res *models.QueryAnalysis) *models.QueryAnalysis {
	out := base.Clone()
	out.Source = SourceModel
	if res.TechnicalLevel != models.TechnicalLevelUnknown {
		out.TechnicalLevel = utils.Clamp(res.TechnicalLevel, m.minLevel, m.maxLevel)
	}
	switch res.Format {
	case models.FormatFreeText, models.FormatSteps, models.FormatList, models.FormatTable:
		out.Format = res.Format
	}
	switch res.Urgency {
	case models.UrgencyNormal, models.UrgencyElevated, models.UrgencyHigh:
		out.Urgency = res.Urgency
	}
	if res.Complexity > 0 && res.Complexity <= 1 {
		out.Complexity = res.Complexity
	}
	if len(res.Topics) > 0 {
		out.Topics = out.Topics[:0]
		for _, t := range res.Topics {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				out.Topics = append(out.Topics, t)
			}
		}
	}
	return out
}
