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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/engine"
)

var synonymsExpand string

var synonymsCmd = &cobra.Command{
	Use:   "synonyms",
	Short: "Show the synonym table or expand a query",
	Long: `Prints the active synonym table in enumeration order. With --expand, prints
the query as the matcher sees it after synonym expansion.`,
	Args: cobra.NoArgs,
	RunE: runSynonyms,
}

func init() {
	synonymsCmd.Flags().StringVar(&synonymsExpand, "expand", "", "query to expand")
	rootCmd.AddCommand(synonymsCmd)
}

func runSynonyms(cmd *cobra.Command, _ []string) error {
	rules, err := config.LoadRules(cmd.Context(), rulesDir)
	if err != nil {
		return err
	}

	if synonymsExpand != "" {
		cmd.Println(engine.NewExpander(rules.Synonyms).Expand(synonymsExpand))
		return nil
	}

	for _, e := range rules.Synonyms.Entries() {
		cmd.Printf("%s: %s\n", e.Canonical, strings.Join(e.Synonyms, ", "))
	}
	return nil
}
