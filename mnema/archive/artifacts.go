package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnema-labs/mnema/mnema/provider"
)

const outlinePrompt = `Analyze this conversation and create a structured outline.

Format as markdown with:
- Main topics discussed (## headers)
- Key points under each topic (bullet points)
- Brief summary at the end

Be concise but comprehensive. Focus on substance, not meta-commentary.

CONVERSATION:
%s

OUTPUT (markdown outline):`

const decisionsPrompt = `Analyze this conversation and extract all decisions, conclusions, and action items.

Format as markdown with:
- Decisions made (explicit choices or conclusions)
- Recommendations given
- Action items or next steps mentioned
- Open questions remaining

If no clear decisions were made, state that briefly.

CONVERSATION:
%s

OUTPUT (markdown decision log):`

const artifactSystem = "You are a precise assistant that generates structured summaries. Output only the requested format, no preamble or explanation."

// ArtifactGenerator produces post-session markdown artifacts (outline and
// decision log) from the archived turns. Runs after the session ends; a
// failure is logged and the artifact skipped, never fatal.
type ArtifactGenerator struct {
	provider provider.Provider
	dir      string
	logger   zerolog.Logger
}

// NewArtifactGenerator writes artifacts under dir.
func NewArtifactGenerator(p provider.Provider, dir string, logger zerolog.Logger) *ArtifactGenerator {
	return &ArtifactGenerator{
		provider: p,
		dir:      dir,
		logger:   logger.With().Str("component", "artifacts").Logger(),
	}
}

// Generate produces the artifacts for a session and returns the names of
// the files written, relative to the artifact directory.
func (g *ArtifactGenerator) Generate(ctx context.Context, record SessionRecord) ([]string, error) {
	if len(record.Messages) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	conversation := formatConversation(record.Messages)
	var written []string

	for _, kind := range []struct {
		suffix, title, prompt string
	}{
		{"outline", "Conversation Outline", outlinePrompt},
		{"decisions", "Decision Log", decisionsPrompt},
	} {
		body, err := g.generateOne(ctx, fmt.Sprintf(kind.prompt, conversation))
		if err != nil {
			g.logger.Warn().Err(err).Str("artifact", kind.suffix).
				Str("session_id", record.SessionID).Msg("artifact generation failed")
			continue
		}
		name := fmt.Sprintf("%s_%s.md", record.SessionID, kind.suffix)
		if err := g.writeMarkdown(filepath.Join(g.dir, name), kind.title, body); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func (g *ArtifactGenerator) generateOne(ctx context.Context, prompt string) (string, error) {
	completion, err := g.provider.Complete(ctx, provider.Request{
		System:   artifactSystem,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	}, provider.Options{MaxNewTokens: 2000, Temperature: 0.2})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion.Text), nil
}

func (g *ArtifactGenerator) writeMarkdown(path, title, body string) error {
	content := fmt.Sprintf("# %s\n\n*Generated: %s*\n\n---\n\n%s\n",
		title, time.Now().Format("2006-01-02 15:04:05"), body)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

func formatConversation(messages []ArchivedMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString("]: ")
		b.WriteString(m.Text)
	}
	return b.String()
}
