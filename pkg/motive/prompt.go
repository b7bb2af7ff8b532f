package motive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/loader/transcript"
)

var (
	errNoSamples        = errors.New("no transcript could be sampled")
	errMalformedSummary = errors.New("malformed motive summary")
)

type turn struct {
	role *common.Role
	text string
}

type sample struct {
	attendanceID string
	turns        []turn
}

func (a *Analyzer) loadSample(ctx context.Context, runID, motive, attendanceID string) (sample, error) {
	rows, err := a.store.ListMessages(ctx, runID, motive, attendanceID)
	if err != nil {
		return sample{}, err
	}
	if len(rows) == 0 {
		return sample{}, fmt.Errorf("attendance %s has no messages", attendanceID)
	}
	s := sample{attendanceID: attendanceID, turns: make([]turn, 0, len(rows))}
	for _, r := range rows {
		s.turns = append(s.turns, turn{role: r.Role, text: strings.TrimSpace(r.Text)})
	}
	return s, nil
}

// renderConversations formats the samples and cuts the result to maxChars runes.
func renderConversations(samples []sample, maxChars int) string {
	var b strings.Builder
	for i, s := range samples {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### Atendimento %s\n", s.attendanceID)
		for _, t := range s.turns {
			fmt.Fprintf(&b, "%s: %s\n", transcript.DisplayLabel(t.role), t.text)
		}
	}
	return util.TruncateRunes(b.String(), maxChars)
}

func buildPrompt(motive string, samples []sample, maxChars int) string {
	return fmt.Sprintf(ai.MotiveSummaryPrompt, motive, len(samples), renderConversations(samples, maxChars))
}

func (a *Analyzer) summarize(ctx context.Context, motive string, samples []sample) (common.MotiveSummary, error) {
	if len(samples) == 0 {
		return common.MotiveSummary{}, errNoSamples
	}

	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.MotiveSystemPrompt),
		ai.WithSchema("motive_summary", "Training scenario synthesized from call-center conversations.", &common.MotiveSummary{}),
	}
	if a.cfg.Model != "" {
		opts = append(opts, ai.WithModel(a.cfg.Model))
	}
	if a.cfg.Temperature > 0 {
		opts = append(opts, ai.WithTemperature(a.cfg.Temperature))
	}

	raw, err := a.client.GenerateChat(ctx, []ai.ChatMessage{
		{Role: ai.RoleUser, Message: buildPrompt(motive, samples, a.cfg.MaxPromptChars)},
	}, opts...)
	if err != nil {
		return common.MotiveSummary{}, fmt.Errorf("summary call: %w", err)
	}
	return parseSummary(raw)
}

// parseSummary accepts loosely formatted model output but requires a title.
// Blank list items are dropped and missing lists become empty.
func parseSummary(raw string) (common.MotiveSummary, error) {
	var summary common.MotiveSummary
	if err := ai.UnmarshalFlexible(raw, &summary); err != nil {
		return common.MotiveSummary{}, fmt.Errorf("%w: %v", errMalformedSummary, err)
	}
	summary.Title = strings.TrimSpace(summary.Title)
	if summary.Title == "" {
		return common.MotiveSummary{}, fmt.Errorf("%w: missing title", errMalformedSummary)
	}
	summary.Process = strings.TrimSpace(summary.Process)
	summary.Profiles = cleanList(summary.Profiles)
	summary.Guidelines = cleanList(summary.Guidelines)
	summary.Patterns = cleanList(summary.Patterns)
	return summary, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
