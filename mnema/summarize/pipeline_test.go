package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnema-labs/mnema/mnema/provider"
)

const validResponse = `Here is the summary you asked for:

<ContextSummary>
  <GeneralSubject>Database performance tuning</GeneralSubject>
  <SpecificContext>
    <Subtopic>Index selection for the orders table</Subtopic>
    <Entities>
      <Entity>orders table</Entity>
      <Entity>btree index</Entity>
    </Entities>
    <KeyPoints>
      <Point>Composite index on (customer_id, created_at) was chosen</Point>
      <Point>Partial index idea postponed</Point>
    </KeyPoints>
  </SpecificContext>
  <NextExpectedTopics>
    <Topic>query plan verification</Topic>
  </NextExpectedTopics>
  <UserIntent mode="analysis">comparing index strategies</UserIntent>
</ContextSummary>`

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	requests  []provider.Request
}

func (s *scriptedProvider) Complete(ctx context.Context, req provider.Request, opts provider.Options) (provider.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return provider.Completion{}, s.errs[i]
	}
	if i >= len(s.responses) {
		return provider.Completion{}, errors.New("no scripted response")
	}
	return provider.Completion{Text: s.responses[i]}, nil
}

func (s *scriptedProvider) Stream(ctx context.Context, req provider.Request, opts provider.Options) (<-chan provider.Chunk, error) {
	return nil, errors.New("not scripted")
}

func testSpan() []Message {
	return []Message{
		{Role: "user", Text: "which index should the orders table get?"},
		{Role: "assistant", Text: "a composite btree on (customer_id, created_at)"},
	}
}

func TestSummarizeHappyPath(t *testing.T) {
	p := NewPipeline(&scriptedProvider{responses: []string{validResponse}}, zerolog.Nop())

	artifact, err := p.Summarize(context.Background(), testSpan(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "Database performance tuning", artifact.GeneralSubject)
	assert.Equal(t, "Index selection for the orders table", artifact.SpecificContext.Subtopic)
	assert.Len(t, artifact.SpecificContext.KeyPoints, 2)
	assert.Equal(t, "analysis", artifact.UserIntent.Mode)
}

func TestSummarizeRetriesOnceOnMalformedResponse(t *testing.T) {
	sp := &scriptedProvider{responses: []string{"I could not produce XML, sorry.", validResponse}}
	p := NewPipeline(sp, zerolog.Nop())

	artifact, err := p.Summarize(context.Background(), testSpan(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sp.calls)
	assert.Equal(t, "Database performance tuning", artifact.GeneralSubject)

	// The retry carries the stricter instruction
	assert.Contains(t, sp.requests[1].System, "ONLY the ContextSummary")
}

func TestSummarizeFailsAfterSecondBadResponse(t *testing.T) {
	sp := &scriptedProvider{responses: []string{"nope", "still nope"}}
	p := NewPipeline(sp, zerolog.Nop())

	_, err := p.Summarize(context.Background(), testSpan(), nil, nil)
	assert.ErrorIs(t, err, ErrCompressionFailed)
	assert.Equal(t, 2, sp.calls)
}

func TestSummarizeRejectsSchemaViolations(t *testing.T) {
	// Well-formed XML but no key points
	empty := `<ContextSummary>
  <GeneralSubject>stuff</GeneralSubject>
  <SpecificContext><Subtopic>things</Subtopic></SpecificContext>
</ContextSummary>`
	sp := &scriptedProvider{responses: []string{empty, empty}}
	p := NewPipeline(sp, zerolog.Nop())

	_, err := p.Summarize(context.Background(), testSpan(), nil, nil)
	assert.ErrorIs(t, err, ErrCompressionFailed)
}

func TestSummarizeEmptySpan(t *testing.T) {
	p := NewPipeline(&scriptedProvider{}, zerolog.Nop())
	_, err := p.Summarize(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestSummarizeKeepsWaypointNotes(t *testing.T) {
	sp := &scriptedProvider{responses: []string{validResponse}}
	p := NewPipeline(sp, zerolog.Nop())

	artifact, err := p.Summarize(context.Background(), testSpan(),
		[]string{"decision on composite index"}, nil)
	require.NoError(t, err)

	found := false
	for _, topic := range artifact.NextExpectedTopics {
		if strings.Contains(topic, "decision on composite index") {
			found = true
		}
	}
	assert.True(t, found, "waypoint note must survive into expected topics")

	// And the model is told about the marked moment
	assert.Contains(t, sp.requests[0].Messages[0].Content, "decision on composite index")
}

func TestSummarizeCarriesMarkedTopicsFromPrior(t *testing.T) {
	sp := &scriptedProvider{responses: []string{validResponse}}
	p := NewPipeline(sp, zerolog.Nop())

	// The prior artifact holds a marked topic from an earlier waypoint
	// compression; the model's new response does not repeat it.
	prior := &Artifact{
		GeneralSubject: "Earlier subject",
		SpecificContext: SpecificContext{
			Subtopic:  "earlier focus",
			KeyPoints: []string{"earlier point"},
		},
		NextExpectedTopics: []string{"schema changes", "marked: decision on composite index"},
	}
	artifact, err := p.Summarize(context.Background(), testSpan(), nil, prior)
	require.NoError(t, err)

	assert.Contains(t, artifact.NextExpectedTopics, "marked: decision on composite index")
	// Unmarked prior topics stay model-discretionary
	assert.NotContains(t, artifact.NextExpectedTopics, "schema changes")

	// No duplicate when the model did carry the topic itself
	kept := strings.Replace(validResponse,
		"<Topic>query plan verification</Topic>",
		"<Topic>revisit the decision on composite index</Topic>", 1)
	sp2 := &scriptedProvider{responses: []string{kept}}
	artifact2, err := NewPipeline(sp2, zerolog.Nop()).Summarize(context.Background(), testSpan(), nil, prior)
	require.NoError(t, err)
	count := 0
	for _, topic := range artifact2.NextExpectedTopics {
		if strings.Contains(topic, "decision on composite index") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSummarizePriorArtifactIncluded(t *testing.T) {
	sp := &scriptedProvider{responses: []string{validResponse}}
	p := NewPipeline(sp, zerolog.Nop())

	prior := &Artifact{
		GeneralSubject: "Earlier subject",
		SpecificContext: SpecificContext{
			Subtopic:  "earlier focus",
			KeyPoints: []string{"earlier point"},
		},
	}
	_, err := p.Summarize(context.Background(), testSpan(), nil, prior)
	require.NoError(t, err)

	assert.Contains(t, sp.requests[0].Messages[0].Content, "Earlier subject")
}
