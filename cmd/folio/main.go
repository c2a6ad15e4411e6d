// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command folio answers questions about a portfolio knowledge base.
//
// Usage:
//
//	folio serve --kb ./portfolio.json
//	folio ask --kb ./portfolio.json "which projects used the MERN stack?"
//	folio chat --kb https://example.com/portfolio.json
//	folio documents --kb gs://bucket/portfolio.yaml --category projects
//	folio synonyms --expand "ml projects"
//
// Example requests against a running server:
//
//	# Start a session
//	curl -X POST http://localhost:8080/v1/folio/sessions
//
//	# Ask within it
//	curl -X POST http://localhost:8080/v1/folio/sessions/<id>/ask \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "Tell me about Orbit Tracker"}'
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
