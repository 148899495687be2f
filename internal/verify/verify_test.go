package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/provenance"
)

func TestExtractQuotes(t *testing.T) {
	cot := "First QUOTE{alpha beta}. Then QUOTE{ gamma }\nand QUOTE{multi\nline} plus QUOTE{  } and QUOTE{unclosed"
	require.Equal(t, []string{"alpha beta", "gamma", "multi\nline"}, ExtractQuotes(cot))
	require.Empty(t, ExtractQuotes("no markers here"))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "theskyisblue", Normalize("The Sky, is BLUE!"))
	require.Equal(t, "全角abc", Normalize("全角ＡＢＣ。"))
	for _, s := range []string{"The Sky, is BLUE!", "  Tabs\tand\nnew-lines ", "Ünïcödé — dash…", "ＦＵＬＬ　ｗｉｄｔｈ", "e \u0301", "cafe\u00b4", "A\u3000\u0308"} {
		once := Normalize(s)
		require.Equal(t, once, Normalize(once), "input %q", s)
	}
	require.Equal(t, "caf\u00e9", Normalize("cafe\u00b4"))
	require.Equal(t, "\u00e4", Normalize("A\u3000\u0308"))
}

func TestEvaluateComposesDetachedAccents(t *testing.T) {
	res := Evaluate("QUOTE{cafe \u0301 au}", "caf\u00e9 au lait")
	require.Equal(t, model.VerificationVerified, res.Status)
	require.Equal(t, 1.0, *res.Score)
}

func TestEvaluateScenarios(t *testing.T) {
	t.Run("case and punctuation insensitive", func(t *testing.T) {
		res := Evaluate("Because QUOTE{the sky is blue}, ...", "Observation: The Sky, is BLUE today.")
		require.Equal(t, model.VerificationVerified, res.Status)
		require.NotNil(t, res.Score)
		require.Equal(t, 1.0, *res.Score)
	})
	t.Run("two of three is suspicious", func(t *testing.T) {
		res := Evaluate("QUOTE{one} QUOTE{two} QUOTE{nine}", "one two three")
		require.Equal(t, model.VerificationSuspicious, res.Status)
		require.InDelta(t, 0.667, *res.Score, 0.001)
	})
	t.Run("four of five is partially verified", func(t *testing.T) {
		res := Evaluate("QUOTE{a1} QUOTE{b2} QUOTE{c3} QUOTE{d4} QUOTE{zz}", "a1 b2 c3 d4")
		require.Equal(t, model.VerificationPartiallyVerified, res.Status)
		require.Equal(t, 0.8, *res.Score)
	})
	t.Run("no quotes is unverified", func(t *testing.T) {
		res := Evaluate("plain reasoning", "source")
		require.Equal(t, model.VerificationUnverified, res.Status)
		require.Nil(t, res.Score)
	})
	t.Run("punctuation only quote never matches", func(t *testing.T) {
		res := Evaluate("QUOTE{...}", "anything")
		require.Equal(t, model.VerificationSuspicious, res.Status)
		require.Zero(t, *res.Score)
	})
}

func TestSameQuotes(t *testing.T) {
	require.True(t, SameQuotes("x QUOTE{a} y QUOTE{b}", "rewritten QUOTE{a} QUOTE{b}"))
	require.False(t, SameQuotes("QUOTE{a} QUOTE{b}", "QUOTE{a}"))
	require.False(t, SameQuotes("QUOTE{a}", "QUOTE{A}"))
}

type memDatasets struct {
	items     map[string]model.Dataset
	updateErr error
}

func (m *memDatasets) GetByID(_ context.Context, id string) (*model.Dataset, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &d, nil
}

func (m *memDatasets) UpdateVerification(_ context.Context, id string, score *float64, status model.VerificationStatus, mtime int64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	d := m.items[id]
	d.TraceabilityScore = score
	d.VerificationStatus = status
	d.Mtime = mtime
	m.items[id] = d
	return nil
}

type memQuestions map[string]model.Question

func (m memQuestions) GetByID(_ context.Context, id string) (*model.Question, error) {
	q, ok := m[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &q, nil
}

type stubContexts struct {
	window *provenance.Context
	err    error
	panics bool
}

func (s stubContexts) Build(_ context.Context, _ *model.Question) (*provenance.Context, error) {
	if s.panics {
		panic("broken index")
	}
	return s.window, s.err
}

func newVerifier(cot string, contexts stubContexts) (*Verifier, *memDatasets) {
	datasets := &memDatasets{items: map[string]model.Dataset{
		"d1": {ID: "d1", QuestionID: "q1", Cot: cot, VerificationStatus: model.VerificationPending},
	}}
	questions := memQuestions{"q1": {ID: "q1", ChunkID: "c1", Question: "Why is the sky blue?"}}
	return NewVerifier(datasets, questions, contexts), datasets
}

func localWindow(content string) *provenance.Context {
	return &provenance.Context{Type: model.QuestionTypeLocal, Anchor: &model.Chunk{ID: "c1", Name: "doc-part-1", Content: content}}
}

func TestVerifyStoresScore(t *testing.T) {
	v, datasets := newVerifier("QUOTE{the sky is blue}", stubContexts{window: localWindow("The Sky, is BLUE.")})
	require.NoError(t, v.Verify(context.Background(), "d1"))
	got := datasets.items["d1"]
	require.Equal(t, model.VerificationVerified, got.VerificationStatus)
	require.Equal(t, 1.0, *got.TraceabilityScore)
}

func TestVerifyMarksBadInputsFailed(t *testing.T) {
	cases := []struct {
		name     string
		cot      string
		contexts stubContexts
		question string
	}{
		{name: "empty cot", cot: "  ", contexts: stubContexts{window: localWindow("x")}},
		{name: "empty context", cot: "QUOTE{x}", contexts: stubContexts{window: localWindow("   ")}},
		{name: "anchor missing", cot: "QUOTE{x}", contexts: stubContexts{err: appErr.ErrVerificationInputMissing}},
		{name: "unexpected error", cot: "QUOTE{x}", contexts: stubContexts{err: errors.New("disk on fire")}},
		{name: "panic", cot: "QUOTE{x}", contexts: stubContexts{panics: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, datasets := newVerifier(tc.cot, tc.contexts)
			require.NoError(t, v.Verify(context.Background(), "d1"))
			got := datasets.items["d1"]
			require.Equal(t, model.VerificationFailed, got.VerificationStatus)
			require.Nil(t, got.TraceabilityScore)
		})
	}
}

func TestVerifyMissingQuestion(t *testing.T) {
	v, datasets := newVerifier("QUOTE{x}", stubContexts{window: localWindow("x")})
	v.questions = memQuestions{}
	require.NoError(t, v.Verify(context.Background(), "d1"))
	require.Equal(t, model.VerificationFailed, datasets.items["d1"].VerificationStatus)
}

func TestVerifyDistilledUsesQuestion(t *testing.T) {
	window := &provenance.Context{Type: model.QuestionTypeLocal, Anchor: &model.Chunk{ID: "c1", Name: model.DistilledChunkName}}
	v, datasets := newVerifier("QUOTE{sky is blue}", stubContexts{window: window})
	require.NoError(t, v.Verify(context.Background(), "d1"))
	require.Equal(t, model.VerificationVerified, datasets.items["d1"].VerificationStatus)
}

func TestVerifyReturnsStoreErrors(t *testing.T) {
	v, datasets := newVerifier("QUOTE{x}", stubContexts{window: localWindow("x")})
	datasets.updateErr = errors.New("db locked")
	require.Error(t, v.Verify(context.Background(), "d1"))
	require.NoError(t, v.Verify(context.Background(), "missing"))
}
