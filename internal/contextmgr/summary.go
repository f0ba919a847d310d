package contextmgr

import (
	"fmt"
	"strings"
)

// SummaryDecision records one decision made during the conversation.
type SummaryDecision struct {
	Topic    string
	Decision string
	Reason   string
}

// SummaryFact records one fact worth remembering across a compression.
type SummaryFact struct {
	Category   string
	Content    string
	Source     string
	Importance int // 1-5, 0 = unset
}

// FileAction classifies how a file was touched during the conversation.
type FileAction string

const (
	FileActionRead    FileAction = "read"
	FileActionWritten FileAction = "written"
	FileActionCreated FileAction = "created"
	FileActionDeleted FileAction = "deleted"
)

// SummaryFileRef records one file touched during the conversation.
type SummaryFileRef struct {
	Path   string
	Action FileAction
	Note   string
}

// SummaryToolUsage records one tool invocation worth remembering.
type SummaryToolUsage struct {
	ToolName    string
	Description string
	Output      string
}

// StructuredSummary is the compact, renderable record of a conversation's
// state produced whenever messages are compressed or handed off.
type StructuredSummary struct {
	CurrentTask    string
	Decisions      []SummaryDecision
	Facts          []SummaryFact
	Files          []SummaryFileRef
	ToolUsage      []SummaryToolUsage
	OpenQuestions  []string
	ProgressPercent int
}

// NewStructuredSummary creates an empty summary for the given task.
func NewStructuredSummary(task string) *StructuredSummary {
	return &StructuredSummary{CurrentTask: task}
}

func (s *StructuredSummary) WithTask(task string) *StructuredSummary {
	s.CurrentTask = task
	return s
}

func (s *StructuredSummary) AddDecision(topic, decision, reason string) *StructuredSummary {
	s.Decisions = append(s.Decisions, SummaryDecision{Topic: topic, Decision: decision, Reason: reason})
	return s
}

func (s *StructuredSummary) AddFact(category, content, source string, importance int) *StructuredSummary {
	s.Facts = append(s.Facts, SummaryFact{Category: category, Content: content, Source: source, Importance: importance})
	return s
}

func (s *StructuredSummary) AddFile(path string, action FileAction, note string) *StructuredSummary {
	s.Files = append(s.Files, SummaryFileRef{Path: path, Action: action, Note: note})
	return s
}

func (s *StructuredSummary) AddToolUsage(toolName, description, output string) *StructuredSummary {
	s.ToolUsage = append(s.ToolUsage, SummaryToolUsage{ToolName: toolName, Description: description, Output: output})
	return s
}

func (s *StructuredSummary) AddOpenQuestion(q string) *StructuredSummary {
	s.OpenQuestions = append(s.OpenQuestions, q)
	return s
}

// ToMarkdown renders the summary as a markdown document suitable for
// injecting back into a conversation as a system/assistant message.
func (s *StructuredSummary) ToMarkdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Session summary\n\n")
	if s.CurrentTask != "" {
		fmt.Fprintf(&b, "**Current task:** %s\n\n", s.CurrentTask)
	}
	if s.ProgressPercent > 0 {
		fmt.Fprintf(&b, "**Progress:** %d%%\n\n", s.ProgressPercent)
	}

	if len(s.Decisions) > 0 {
		b.WriteString("### Decisions\n")
		for _, d := range s.Decisions {
			if d.Reason != "" {
				fmt.Fprintf(&b, "- %s: %s (%s)\n", d.Topic, d.Decision, d.Reason)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", d.Topic, d.Decision)
			}
		}
		b.WriteString("\n")
	}

	if len(s.Facts) > 0 {
		b.WriteString("### Facts\n")
		for _, f := range s.Facts {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Category, f.Content)
		}
		b.WriteString("\n")
	}

	if len(s.Files) > 0 {
		b.WriteString("### Files touched\n")
		for _, f := range s.Files {
			if f.Note != "" {
				fmt.Fprintf(&b, "- %s (%s): %s\n", f.Path, f.Action, f.Note)
			} else {
				fmt.Fprintf(&b, "- %s (%s)\n", f.Path, f.Action)
			}
		}
		b.WriteString("\n")
	}

	if len(s.ToolUsage) > 0 {
		b.WriteString("### Tool usage\n")
		for _, t := range s.ToolUsage {
			fmt.Fprintf(&b, "- %s: %s\n", t.ToolName, t.Description)
		}
		b.WriteString("\n")
	}

	if len(s.OpenQuestions) > 0 {
		b.WriteString("### Open questions\n")
		for _, q := range s.OpenQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ToCompact renders a single-line summary for log lines and status displays.
func (s *StructuredSummary) ToCompact() string {
	return fmt.Sprintf("task=%q decisions=%d facts=%d files=%d progress=%d%%",
		s.CurrentTask, len(s.Decisions), len(s.Facts), len(s.Files), s.ProgressPercent)
}

// EstimateTokens estimates the token cost of the rendered summary.
func (s *StructuredSummary) EstimateTokens() int {
	return EstimateTokens(s.ToMarkdown())
}
