package question

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/ai"
	"github.com/xxxsen/dsforge/internal/model"
)

const (
	defaultMaskRemovingProbability = 0.6
	tagCacheSize                   = 128
	tagCacheTTL                    = time.Minute
	otherLabel                     = "Other"
)

type QuestionStore interface {
	CreateBatch(ctx context.Context, questions []model.Question) error
}

type TagLister interface {
	ListByProject(ctx context.Context, projectID string) ([]model.Tag, error)
}

type Generator struct {
	questions     QuestionStore
	tags          TagLister
	tagCache      *expirable.LRU[string, []model.Tag]
	maskProb      float64
	maxInputChars int
	random        func() float64
	now           func() time.Time
	newID         func() string
}

type GeneratorOption func(*Generator)

// WithMaskRemovingProbability sets the chance a trailing question mark is stripped.
func WithMaskRemovingProbability(p float64) GeneratorOption {
	return func(g *Generator) {
		if p >= 0 && p <= 1 {
			g.maskProb = p
		}
	}
}

func WithRandom(fn func() float64) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.random = fn
		}
	}
}

func WithMaxInputChars(n int) GeneratorOption {
	return func(g *Generator) {
		g.maxInputChars = n
	}
}

func NewGenerator(questions QuestionStore, tags TagLister, opts ...GeneratorOption) *Generator {
	g := &Generator{
		questions: questions,
		tags:      tags,
		tagCache:  expirable.NewLRU[string, []model.Tag](tagCacheSize, nil, tagCacheTTL),
		maskProb:  defaultMaskRemovingProbability,
		random:    rand.Float64,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces up to quota questions for a unit and stores them against its
// anchor chunk. Units carrying GA pairs run once per pair with the quota split
// between them. An unparsable model reply yields no questions and no error.
func (g *Generator) Generate(ctx context.Context, llm ai.ILLM, unit Unit, quota int, language string) ([]model.Question, error) {
	if quota <= 0 || unit.Context == nil || unit.Anchor() == nil {
		return nil, nil
	}
	if len(unit.GaPairs) == 0 {
		return g.generateOnce(ctx, llm, unit, quota, nil, language)
	}
	perPair := max(1, quota/len(unit.GaPairs))
	var out []model.Question
	for i := range unit.GaPairs {
		items, err := g.generateOnce(ctx, llm, unit, perPair, &unit.GaPairs[i], language)
		if err != nil {
			return out, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (g *Generator) generateOnce(ctx context.Context, llm ai.ILLM, unit Unit, quota int, pair *model.GaPair, language string) ([]model.Question, error) {
	anchor := unit.Anchor()
	logger := logutil.GetLogger(ctx).With(zap.String("chunk_id", anchor.ID), zap.String("type", string(unit.Context.Type)))
	text := ai.Truncate(unit.Context.Text(), g.maxInputChars)
	reply, err := llm.Complete(ctx, buildQuestionPrompt(unit.Context.Type, text, quota, pair, language))
	if err != nil {
		return nil, err
	}
	texts, err := ai.ParseStringArray(reply)
	if err != nil {
		logger.Warn("parse generated questions failed", zap.Error(err))
		return nil, nil
	}
	if len(texts) > quota {
		texts = texts[:quota]
	}
	if len(texts) == 0 {
		return nil, nil
	}
	for i := range texts {
		texts[i] = g.maskQuestion(texts[i])
	}
	labels := g.label(ctx, llm, unit.Context.Anchor.ProjectID, texts)

	now := g.now().Unix()
	meta := unit.Metadata()
	out := make([]model.Question, 0, len(texts))
	for i, text := range texts {
		q := model.Question{
			ID:        g.newID(),
			ProjectID: anchor.ProjectID,
			ChunkID:   anchor.ID,
			Question:  text,
			Label:     labels[i],
			Metadata:  meta,
			Ctime:     now,
			Mtime:     now,
		}
		if pair != nil {
			q.GaPairID = pair.ID
		}
		out = append(out, q)
	}
	if err := g.questions.CreateBatch(ctx, out); err != nil {
		return nil, err
	}
	logger.Debug("questions saved", zap.Int("count", len(out)))
	return out, nil
}

// maskQuestion drops a trailing question mark with the configured probability so
// the dataset does not teach the model that every prompt ends in one.
func (g *Generator) maskQuestion(q string) string {
	q = strings.TrimSpace(q)
	if !strings.HasSuffix(q, "?") && !strings.HasSuffix(q, "？") {
		return q
	}
	if g.random() >= g.maskProb {
		return q
	}
	q = strings.TrimSuffix(q, "?")
	return strings.TrimSuffix(q, "？")
}

type labelItem struct {
	Question string `json:"question"`
	Label    string `json:"label"`
}

// label asks the model to map questions onto project tags. Any failure leaves
// the questions unlabeled.
func (g *Generator) label(ctx context.Context, llm ai.ILLM, projectID string, questions []string) []string {
	out := make([]string, len(questions))
	tags := g.projectTags(ctx, projectID)
	if len(tags) == 0 {
		return out
	}
	logger := logutil.GetLogger(ctx).With(zap.String("project_id", projectID))
	reply, err := llm.Complete(ctx, buildLabelPrompt(tags, questions))
	if err != nil {
		logger.Warn("label questions failed", zap.Error(err))
		return out
	}
	raw := ai.ExtractJSONArray(reply)
	var items []labelItem
	if raw == "" || json.Unmarshal([]byte(raw), &items) != nil {
		logger.Warn("parse question labels failed")
		return out
	}
	known := knownLabels(tags)
	byQuestion := make(map[string]string, len(items))
	for _, it := range items {
		byQuestion[strings.TrimSpace(it.Question)] = resolveLabel(known, it.Label)
	}
	for i, q := range questions {
		if label, ok := byQuestion[q]; ok {
			out[i] = label
			continue
		}
		if i < len(items) {
			out[i] = resolveLabel(known, items[i].Label)
		}
	}
	return out
}

func (g *Generator) projectTags(ctx context.Context, projectID string) []model.Tag {
	if g.tags == nil {
		return nil
	}
	if tags, ok := g.tagCache.Get(projectID); ok {
		return tags
	}
	tags, err := g.tags.ListByProject(ctx, projectID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("load project tags failed", zap.String("project_id", projectID), zap.Error(err))
		return nil
	}
	g.tagCache.Add(projectID, tags)
	return tags
}

// knownLabels maps both "parent > child" paths and bare labels to the bare label.
func knownLabels(tags []model.Tag) map[string]string {
	out := make(map[string]string, len(tags)*2)
	paths := tagPaths(tags)
	for i, t := range tags {
		out[strings.ToLower(t.Label)] = t.Label
		out[strings.ToLower(paths[i])] = t.Label
	}
	out[strings.ToLower(otherLabel)] = otherLabel
	return out
}

func resolveLabel(known map[string]string, label string) string {
	return known[strings.ToLower(strings.TrimSpace(label))]
}
