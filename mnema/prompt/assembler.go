// Package prompt renders the final model input from its parts. Assembly is
// pure: no clocks, no randomness, no map iteration, so identical inputs
// always produce an identical prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mnema-labs/mnema/mnema/conversation"
	"github.com/mnema-labs/mnema/mnema/retrieval"
	"github.com/mnema-labs/mnema/mnema/summarize"
)

// Input is everything a single render needs. Empty optional sections are
// skipped; the section order never changes.
type Input struct {
	System         string
	Summary        *summarize.Artifact
	Retrieval      []retrieval.Result
	Degraded       bool
	Intent         *conversation.IntentSignal
	LiveTurns      []conversation.Turn
	CurrentMessage string
}

// Assembler builds prompts. Stateless; the zero value is usable.
type Assembler struct{}

func NewAssembler() *Assembler { return &Assembler{} }

// Assemble renders system prompt, summary block, retrieval context, intent
// hint, live turns, and the current message, in that order.
func (a *Assembler) Assemble(in Input) string {
	var sections []string

	if s := norm(in.System); s != "" {
		sections = append(sections, s)
	}
	if in.Summary != nil {
		sections = append(sections, summaryBlock(in.Summary))
	}
	if len(in.Retrieval) > 0 {
		sections = append(sections, retrievalBlock(in.Retrieval, in.Degraded))
	}
	if in.Intent != nil && in.Intent.Mode != "" {
		sections = append(sections, intentHint(*in.Intent))
	}
	if len(in.LiveTurns) > 0 {
		sections = append(sections, turnsBlock(in.LiveTurns))
	}
	if m := norm(in.CurrentMessage); m != "" {
		sections = append(sections, "user: "+m)
	}

	return strings.Join(sections, "\n\n")
}

// norm reduces prompt diffs for caching: CRLF to LF, trimmed ends.
func norm(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

func summaryBlock(artifact *summarize.Artifact) string {
	return "PREVIOUS CONTEXT HAS BEEN SUMMARIZED AS FOLLOWS:\n\n" +
		norm(artifact.Render()) +
		"\n\nCONTINUE THE CONVERSATION SEAMLESSLY."
}

func retrievalBlock(results []retrieval.Result, degraded bool) string {
	var b strings.Builder
	b.WriteString("RELEVANT CONTEXT FROM ATTACHED DOCUMENTS:\n")
	b.WriteString("(Use this information to inform your response. Cite sources when directly referencing content. Confidence metadata below is for you only; never show it to the user.)")
	if degraded {
		b.WriteString("\n(Retrieval ran in degraded mode; coverage may be partial.)")
	}
	for i, r := range results {
		b.WriteString("\n\n[Source ")
		b.WriteString(fmt.Sprintf("%d: %s", i+1, r.SourceFile))
		if r.SectionLabel != "" {
			b.WriteString(" / Section: ")
			b.WriteString(r.SectionLabel)
		}
		b.WriteString(fmt.Sprintf(" / Relevance: %.2f]", r.FusedScore))
		b.WriteString("\n")
		// The parent's full span, not the matched fragment
		text := r.ParentContext
		if text == "" {
			text = r.Text
		}
		b.WriteString(norm(text))
	}
	return b.String()
}

// intentHint is advisory only: it may shape tone and verbosity, never
// content decisions.
func intentHint(sig conversation.IntentSignal) string {
	var advice string
	switch sig.Mode {
	case conversation.IntentAnalysis:
		advice = "the user is analyzing something; be precise and structured"
	case conversation.IntentDrafting:
		advice = "the user is drafting; offer concrete wording and keep commentary short"
	case conversation.IntentAdversarial:
		advice = "the user is stress-testing ideas; engage directly with objections"
	default:
		advice = "the user is exploring; keep answers open-ended and suggest directions"
	}
	return fmt.Sprintf("(Low-priority style hint, confidence %.2f: %s.)", sig.Confidence, advice)
}

func turnsBlock(turns []conversation.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(norm(t.Text))
	}
	return b.String()
}
