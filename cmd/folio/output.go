// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/folio/services/folio/engine"
)

// printer renders engine results, styled only when writing to a terminal.
type printer struct {
	w      io.Writer
	styled bool

	answer   lipgloss.Style
	followUp lipgloss.Style
	suggest  lipgloss.Style
	muted    lipgloss.Style
	errStyle lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w, styled: isTerminal(w)}
	p.answer = lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4"))
	p.followUp = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	p.suggest = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")).Bold(true)
	p.muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	p.errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// result prints the reply text and, when present, the follow-up prompts.
func (p *printer) result(res engine.Result) {
	fmt.Fprintln(p.w, p.render(p.answer, res.Text))
	if res.Outcome == engine.OutcomeFallback {
		return
	}
	if len(res.FollowUps) > 0 {
		fmt.Fprintln(p.w)
		for _, f := range res.FollowUps {
			fmt.Fprintln(p.w, p.render(p.followUp, "  > "+f))
		}
	}
}

func (p *printer) note(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(p.muted, fmt.Sprintf(format, args...)))
}

func (p *printer) err(e error) {
	fmt.Fprintln(p.w, p.render(p.errStyle, "error: "+e.Error()))
}
