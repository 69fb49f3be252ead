package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mnema-labs/mnema/mnema/provider"
)

// ErrCompressionFailed means summarization failed twice. The caller keeps
// the original turns live; nothing is lost.
var ErrCompressionFailed = errors.New("summarize: compression failed")

const summaryInstructions = `Summarize the conversation span below into a single ContextSummary XML document.

Respond with exactly one element of this shape and nothing else:

<ContextSummary>
  <GeneralSubject>one line naming the overall subject</GeneralSubject>
  <SpecificContext>
    <Subtopic>what was being discussed most recently</Subtopic>
    <Entities>
      <Entity>a person, system, or thing that matters</Entity>
    </Entities>
    <KeyPoints>
      <Point>a decision, fact, or open thread worth carrying forward</Point>
    </KeyPoints>
  </SpecificContext>
  <NextExpectedTopics>
    <Topic>where the conversation is likely heading</Topic>
  </NextExpectedTopics>
  <UserIntent mode="exploration|analysis|drafting|adversarial">one line on what the user is trying to do</UserIntent>
</ContextSummary>`

const strictRetrySuffix = `

Your previous response was not valid. Output ONLY the ContextSummary XML element, starting with <ContextSummary> and ending with </ContextSummary>. Every listed element is required and KeyPoints must contain at least one Point.`

// Pipeline produces validated summary artifacts from conversation spans.
type Pipeline struct {
	provider provider.Provider
	opts     provider.Options
	logger   zerolog.Logger
}

// NewPipeline creates a summarization pipeline over the given backend.
func NewPipeline(p provider.Provider, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		provider: p,
		opts: provider.Options{
			MaxNewTokens: 1024,
			Temperature:  0.2,
		},
		logger: logger.With().Str("component", "summarize").Logger(),
	}
}

// Summarize compresses the span into an artifact. Waypoint notes describe
// turns the user marked inside the span; they must survive into the
// artifact's expected topics. A prior artifact, when present, is folded in
// so state from earlier compressions is not lost; marked entries it carries
// propagate into every later artifact whether or not the model repeats them.
//
// One malformed response earns a single stricter retry; a second failure
// returns ErrCompressionFailed and the caller keeps the span as-is.
func (p *Pipeline) Summarize(ctx context.Context, span []Message, waypointNotes []string, prior *Artifact) (*Artifact, error) {
	if len(span) == 0 {
		return nil, fmt.Errorf("summarize: empty span")
	}

	req := provider.Request{
		System:   summaryInstructions,
		Messages: []provider.Message{{Role: "user", Content: p.renderSpan(span, waypointNotes, prior)}},
	}

	artifact, err := p.attempt(ctx, req)
	if err == nil {
		return p.finish(artifact, waypointNotes, prior), nil
	}
	p.logger.Warn().Err(err).Msg("summary attempt rejected, retrying once")

	retryReq := req
	retryReq.System += strictRetrySuffix
	artifact, retryErr := p.attempt(ctx, retryReq)
	if retryErr != nil {
		p.logger.Error().AnErr("first", err).AnErr("second", retryErr).
			Msg("summarization abandoned, span stays live")
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, retryErr)
	}
	return p.finish(artifact, waypointNotes, prior), nil
}

func (p *Pipeline) attempt(ctx context.Context, req provider.Request) (*Artifact, error) {
	completion, err := p.provider.Complete(ctx, req, p.opts)
	if err != nil {
		return nil, err
	}
	artifact, err := ParseArtifact(completion.Text)
	if err != nil {
		return nil, err
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return artifact, nil
}

// markedPrefix tags expected topics that exist because the user marked a
// turn, so later compressions can recognize and re-carry them.
const markedPrefix = "marked: "

// finish guarantees waypoint context survives regardless of what the model
// chose to keep. Marked entries in the prior artifact are re-carried too:
// a waypoint compressed away two artifacts ago still reaches this one.
func (p *Pipeline) finish(artifact *Artifact, waypointNotes []string, prior *Artifact) *Artifact {
	for _, note := range waypointNotes {
		if !topicPresent(artifact.NextExpectedTopics, note) {
			artifact.NextExpectedTopics = append(artifact.NextExpectedTopics, markedPrefix+note)
		}
	}
	if prior == nil {
		return artifact
	}
	for _, topic := range prior.NextExpectedTopics {
		if !strings.HasPrefix(topic, markedPrefix) {
			continue
		}
		if !topicPresent(artifact.NextExpectedTopics, strings.TrimPrefix(topic, markedPrefix)) {
			artifact.NextExpectedTopics = append(artifact.NextExpectedTopics, topic)
		}
	}
	return artifact
}

func topicPresent(topics []string, note string) bool {
	for _, topic := range topics {
		if strings.Contains(topic, note) {
			return true
		}
	}
	return false
}

func (p *Pipeline) renderSpan(span []Message, waypointNotes []string, prior *Artifact) string {
	var b strings.Builder
	if prior != nil {
		b.WriteString("Earlier context, already summarized:\n")
		b.WriteString(prior.Render())
		b.WriteString("\n\n")
	}
	if len(waypointNotes) > 0 {
		b.WriteString("The user explicitly marked these moments; keep them visible in the summary:\n")
		for _, note := range waypointNotes {
			b.WriteString("- ")
			b.WriteString(note)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Conversation span:\n")
	for _, m := range span {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}
