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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/folio/services/folio/engine"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Resolves a single question in a fresh conversation. Follow-ups and
did-you-mean numbers need a conversation; use chat for those.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(askCmd)
}

// askOutput is the JSON shape of ask --json.
type askOutput struct {
	Outcome    string             `json:"outcome"`
	Text       string             `json:"text"`
	FollowUps  []string           `json:"follow_ups"`
	Candidates []candidateSummary `json:"candidates,omitempty"`
}

type candidateSummary struct {
	DocumentID string  `json:"document_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	Field      string  `json:"field"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	query := strings.Join(args, " ")
	res, err := svc.Engine().Resolve(ctx, query, engine.Conversation{})
	if err != nil {
		return fmt.Errorf("resolving %q: %w", query, err)
	}

	if askJSON {
		out := askOutput{
			Outcome:   string(res.Outcome),
			Text:      res.Text,
			FollowUps: res.FollowUps,
		}
		if out.FollowUps == nil {
			out.FollowUps = []string{}
		}
		for _, c := range res.Candidates {
			out.Candidates = append(out.Candidates, candidateSummary{
				DocumentID: c.Document.ID,
				Name:       c.Document.DisplayName(),
				Score:      c.Score,
				Field:      c.Field,
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	newPrinter(cmd.OutOrStdout()).result(res)
	return nil
}
