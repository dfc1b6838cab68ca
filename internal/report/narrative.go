package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"cogtrial/domain/trial"
)

// Meta carries the run facts the narrative reports alongside the estimates.
type Meta struct {
	RunID        string
	Input        string
	Participants int
	Rows         int
	Dropped      map[trial.Outcome]int
	Scales       map[trial.Outcome]trial.ScaleParams
	Pooled       map[trial.Contrast]trial.ContrastEstimate
	RHat         []float64
}

// BuildNarrative renders the markdown report body.
func BuildNarrative(meta Meta, merged []trial.ContrastEstimate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Exercise intervention and executive function: no pooling vs partial pooling\n\n")
	fmt.Fprintf(&b, "Run `%s` over `%s`: %d participants, %d paired (participant, outcome) rows across %d outcomes.\n\n",
		meta.RunID, meta.Input, meta.Participants, meta.Rows, len(trial.Outcomes()))

	b.WriteString("## Standardization\n\n")
	b.WriteString("Each outcome is z-scored on its pre-timepoint mean and SD; the same parameters are applied to the post scores, which are deliberately not re-centered. Reversed (time-based) outcomes are sign-flipped so higher always means better.\n\n")
	b.WriteString("| outcome | pre mean | pre SD | n | dropped | reversed |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, outcome := range trial.Outcomes() {
		s := meta.Scales[outcome]
		fmt.Fprintf(&b, "| %s | %.3f | %.3f | %d | %d | %v |\n",
			outcome, s.Mean, s.SD, s.N, meta.Dropped[outcome], s.Reversed)
	}
	b.WriteString("\n")

	b.WriteString("## Population-average effects (hierarchical model)\n\n")
	for _, contrast := range trial.Contrasts() {
		pooled := meta.Pooled[contrast]
		fmt.Fprintf(&b, "- `%s`: %.3f [%.3f, %.3f]\n", contrast, pooled.Estimate, pooled.Lower, pooled.Upper)
	}
	b.WriteString("\nPer-outcome hierarchical estimates below are pulled toward these averages; outcomes with noisier data shrink the most.\n\n")

	b.WriteString("## Contrast estimates\n\n")
	b.WriteString("| contrast | outcome | model | estimate | lower | upper |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range merged {
		fmt.Fprintf(&b, "| %s | %s | %s | %.3f | %.3f | %.3f |\n",
			r.Contrast, r.Outcome, r.Model, r.Estimate, r.Lower, r.Upper)
	}
	b.WriteString("\n")

	if len(meta.RHat) > 0 {
		b.WriteString("## Sampler diagnostics\n\n")
		b.WriteString("Split-chain R-hat per fixed effect (intercept, pre_z, stabilityA, stabilityB): ")
		parts := make([]string, len(meta.RHat))
		for i, r := range meta.RHat {
			parts[i] = fmt.Sprintf("%.3f", r)
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML converts the markdown narrative into a standalone HTML page.
func RenderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	return markdown.Render(doc, renderer)
}

// WriteNarrative writes both the markdown and rendered HTML report files.
func WriteNarrative(dir string, meta Meta, merged []trial.ContrastEstimate) error {
	md := BuildNarrative(meta, merged)
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(md), 0o644); err != nil {
		return fmt.Errorf("write report.md: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.html"), RenderHTML(md), 0o644); err != nil {
		return fmt.Errorf("write report.html: %w", err)
	}
	return nil
}
