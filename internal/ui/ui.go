// Package ui renders command summaries for the terminal, styled when
// writing to a TTY and plain otherwise.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/imamik/alpine-cloud-images/internal/prune"
)

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes summaries to w.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter returns a Printer that styles its output only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	f, ok := w.(*os.File)
	return &Printer{w: w, styled: ok && IsTTY(f)}
}

func (p *Printer) render(s lipgloss.Style, str string) string {
	if !p.styled {
		return str
	}
	return s.Render(str)
}

// Title prints a heading line.
func (p *Printer) Title(title string) {
	fmt.Fprintln(p.w, p.render(titleStyle, title))
}

// ImagePlan is one image and the actions planned for it.
type ImagePlan struct {
	Key     string
	Actions []string
	Undo    []string
}

// Plan prints the planned actions per image.
func (p *Printer) Plan(step string, plans []ImagePlan) {
	p.Title(fmt.Sprintf("Step %s: %d images", step, len(plans)))
	for _, ip := range plans {
		icon, style := pending, dimStyle
		if len(ip.Actions) > 0 {
			icon, style = checkMark, okStyle
		}
		actions := strings.Join(ip.Actions, " ")
		if actions == "" {
			actions = "-"
		}
		fmt.Fprintf(p.w, "  %s %-48s %s\n", p.render(style, icon), ip.Key, actions)
		if len(ip.Undo) > 0 {
			fmt.Fprintf(p.w, "       %s\n", p.render(warningStyle, "undo: "+strings.Join(ip.Undo, " ")))
		}
	}
}

// Result is the outcome of one image's actions.
type Result struct {
	Key string
	Err error
}

// Results prints per-image outcomes and reports how many failed.
func (p *Printer) Results(results []Result) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(p.w, "  %s %s: %v\n", p.render(failedStyle, crossMark), r.Key, r.Err)
			continue
		}
		fmt.Fprintf(p.w, "  %s %s\n", p.render(okStyle, checkMark), r.Key)
	}
	return failed
}

// PruneSummary prints the per-region and total removal counts of plan.
func (p *Printer) PruneSummary(plan *prune.Plan) {
	p.Title("SUMMARY")
	for _, region := range plan.Regions() {
		fmt.Fprintf(p.w, "  %s\n", p.render(sectionStyle, region))
		for _, c := range plan.RegionCounts(region) {
			p.count(c)
		}
	}
	p.Title("TOTALS")
	for _, c := range plan.Totals() {
		p.count(c)
	}
}

func (p *Printer) count(c prune.Count) {
	style := dimStyle
	if prune.Removes(c.Reason) {
		style = warningStyle
	}
	fmt.Fprintf(p.w, "    %6d  %s\n", c.Count, p.render(style, c.Reason))
}
