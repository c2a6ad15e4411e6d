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
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/folio/services/folio/engine"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation",
	Long: `Starts a conversation on stdin. Answer "yes" to take a follow-up, a number
to pick a suggestion, and /quit (or end of input) to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	p := newPrinter(cmd.OutOrStdout())
	p.note("folio chat: %d documents loaded. /quit to leave.", svc.Status().Documents)

	// The REPL holds its conversation locally; one user, no session store.
	var conv engine.Conversation
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(p.w, p.render(p.muted, "> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		res, err := svc.Engine().Resolve(ctx, line, conv)
		if err != nil {
			p.err(err)
			continue
		}
		conv = res.Conversation
		p.result(res)
	}
	fmt.Fprintln(p.w)
	return scanner.Err()
}
