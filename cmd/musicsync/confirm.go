package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"musicsync/internal/plan"
	"musicsync/internal/session"
)

var (
	headingStyle   = lipgloss.NewStyle().Bold(true)
	copyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	transcodeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	deleteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// terminalUI implements the confirmation gate and the plan preview.
type terminalUI struct {
	in          io.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
	targetName  string
}

func newTerminalUI(in io.Reader, out io.Writer, assumeYes bool) *terminalUI {
	return &terminalUI{
		in:          in,
		out:         out,
		assumeYes:   assumeYes,
		interactive: isInteractive(in) && isInteractive(out),
	}
}

func isInteractive(stream any) bool {
	file, ok := stream.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (u *terminalUI) confirm(ctx context.Context, summary plan.Summary, ops []plan.Operation) (session.Decision, error) {
	fmt.Fprintln(u.out, headingStyle.Render(summary.String()))
	if u.targetName != "" {
		fmt.Fprintln(u.out, mutedStyle.Render("Target: "+u.targetName))
	}
	if u.assumeYes {
		return session.DecisionProceed, nil
	}
	if !u.interactive {
		fmt.Fprintln(u.out, "Not running in a terminal; rerun with --yes to apply these changes.")
		return session.DecisionAbort, nil
	}

	choice := session.DecisionAbort
	field := huh.NewSelect[session.Decision]().
		Title("Apply these changes?").
		Options(
			huh.NewOption("Proceed", session.DecisionProceed),
			huh.NewOption(fmt.Sprintf("Preview %d operations", len(ops)), session.DecisionPreview),
			huh.NewOption("Abort", session.DecisionAbort),
		).
		Value(&choice)
	err := huh.NewForm(huh.NewGroup(field)).
		WithInput(u.in).
		WithOutput(u.out).
		RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return session.DecisionAbort, nil
	}
	if err != nil {
		return session.DecisionAbort, fmt.Errorf("confirmation prompt: %w", err)
	}
	return choice, nil
}

func (u *terminalUI) preview(ops []plan.Operation) {
	for _, op := range ops {
		fmt.Fprintln(u.out, previewLine(op))
	}
}

func previewLine(op plan.Operation) string {
	label := op.Label()
	style := copyStyle
	switch {
	case op.Kind() == plan.KindDelete:
		style = deleteStyle
	case op.RequiresTranscode():
		style = transcodeStyle
	}
	return style.Render(label) + strings.Repeat(" ", max(1, 10-len(label))) + op.TargetPath()
}
