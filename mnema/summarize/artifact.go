// Package summarize turns a span of conversation turns into a structured
// summary artifact via a model call, validating the result before it is
// allowed to replace any live turns.
package summarize

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Message is one turn handed to the pipeline. A minimal shape so the
// package stays independent of session bookkeeping.
type Message struct {
	Role string
	Text string
}

// SpecificContext carries the fine-grained state of the summarized span.
type SpecificContext struct {
	Subtopic  string   `xml:"Subtopic" json:"subtopic"`
	Entities  []string `xml:"Entities>Entity" json:"entities"`
	KeyPoints []string `xml:"KeyPoints>Point" json:"key_points"`
}

// UserIntent records the working mode the model inferred for the span.
type UserIntent struct {
	Mode string `xml:"mode,attr" json:"mode"`
	Text string `xml:",chardata" json:"text"`
}

// Artifact is the structured summary that replaces a compressed span.
type Artifact struct {
	XMLName            xml.Name        `xml:"ContextSummary" json:"-"`
	GeneralSubject     string          `xml:"GeneralSubject" json:"general_subject"`
	SpecificContext    SpecificContext `xml:"SpecificContext" json:"specific_context"`
	NextExpectedTopics []string        `xml:"NextExpectedTopics>Topic" json:"next_expected_topics"`
	UserIntent         UserIntent      `xml:"UserIntent" json:"user_intent"`
}

// artifactSchema is the contract a generated artifact must meet before it
// may replace live turns.
const artifactSchema = `{
	"type": "object",
	"required": ["general_subject", "specific_context"],
	"properties": {
		"general_subject": {"type": "string", "minLength": 1},
		"specific_context": {
			"type": "object",
			"required": ["subtopic", "key_points"],
			"properties": {
				"subtopic": {"type": "string", "minLength": 1},
				"entities": {"type": "array", "items": {"type": "string"}},
				"key_points": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
			}
		},
		"next_expected_topics": {"type": "array", "items": {"type": "string"}},
		"user_intent": {
			"type": "object",
			"properties": {
				"mode": {"type": "string", "enum": ["exploration", "analysis", "drafting", "adversarial", ""]}
			}
		}
	}
}`

// ParseArtifact extracts and decodes the <ContextSummary> block from a raw
// model response.
func ParseArtifact(raw string) (*Artifact, error) {
	start := strings.Index(raw, "<ContextSummary")
	end := strings.LastIndex(raw, "</ContextSummary>")
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("no ContextSummary element in response")
	}
	block := raw[start : end+len("</ContextSummary>")]

	var a Artifact
	if err := xml.Unmarshal([]byte(block), &a); err != nil {
		return nil, fmt.Errorf("malformed ContextSummary: %w", err)
	}
	return &a, nil
}

// Validate checks the artifact against the schema.
func (a *Artifact) Validate() error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader([]byte(artifactSchema)),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var issues []string
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("artifact rejected by schema: %s", strings.Join(issues, "; "))
	}
	return nil
}

// XML renders the artifact as an indented ContextSummary document.
func (a *Artifact) XML() (string, error) {
	out, err := xml.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render artifact: %w", err)
	}
	return string(out), nil
}

// Render produces the plain-text form used inside assembled prompts. The
// output is deterministic: fixed section order, no timestamps.
func (a *Artifact) Render() string {
	var b strings.Builder
	b.WriteString("Subject: ")
	b.WriteString(a.GeneralSubject)
	b.WriteString("\nCurrent focus: ")
	b.WriteString(a.SpecificContext.Subtopic)
	if len(a.SpecificContext.Entities) > 0 {
		b.WriteString("\nEntities: ")
		b.WriteString(strings.Join(a.SpecificContext.Entities, ", "))
	}
	if len(a.SpecificContext.KeyPoints) > 0 {
		b.WriteString("\nKey points:")
		for _, p := range a.SpecificContext.KeyPoints {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
	}
	if len(a.NextExpectedTopics) > 0 {
		b.WriteString("\nLikely next topics: ")
		b.WriteString(strings.Join(a.NextExpectedTopics, ", "))
	}
	if a.UserIntent.Mode != "" {
		b.WriteString("\nUser intent: ")
		b.WriteString(a.UserIntent.Mode)
		if a.UserIntent.Text != "" {
			b.WriteString(" (")
			b.WriteString(a.UserIntent.Text)
			b.WriteString(")")
		}
	}
	return b.String()
}
