// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/folio/services/folio"
)

const testKB = "../../services/folio/testdata/portfolio.json"

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	kbSource, rulesDir, logLevel = "", "", "error"
	askJSON, documentsCategory, synonymsExpand, gcsAnonymous = false, "", "", false

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func TestAsk_ConfidentAnswer(t *testing.T) {
	out, err := runCLI(t, "", "ask", "--kb", testKB, "Orbit", "Tracker")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Orbit Tracker\n"), out)
	assert.Contains(t, out, "  > Would you like to hear about the performance and scaling of Orbit Tracker?")
}

func TestAsk_JSON(t *testing.T) {
	out, err := runCLI(t, "", "ask", "--kb", testKB, "--json", "hello")
	require.NoError(t, err)

	var got askOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "small_talk", got.Outcome)
	assert.NotEmpty(t, got.Text)
	assert.Empty(t, got.Candidates)
}

func TestAsk_RequiresKnowledgeBase(t *testing.T) {
	_, err := runCLI(t, "", "ask", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no knowledge base")

	_, err = runCLI(t, "", "ask", "--kb", "does-not-exist.json", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading knowledge base")
}

func TestChat_FollowUpConversation(t *testing.T) {
	out, err := runCLI(t, "Orbit Tracker\nyes\n\n?!\n/quit\nnever read\n", "chat", "--kb", testKB)
	require.NoError(t, err)

	assert.Contains(t, out, "4 documents loaded")
	assert.Contains(t, out, "Performance (Orbit Tracker): Serves ten thousand position updates per second")
	assert.Contains(t, out, `I couldn't find a match for "?!"`)
	assert.NotContains(t, out, "error:")
}

func TestDocuments(t *testing.T) {
	out, err := runCLI(t, "", "documents", "--kb", testKB, "--category", "projects")
	require.NoError(t, err)

	assert.Contains(t, out, "projects-0")
	assert.Contains(t, out, "Ledger Sync")
	assert.NotContains(t, out, "experiences-0")
	assert.Contains(t, out, "2 document(s)")
}

func TestDocuments_UnknownCategory(t *testing.T) {
	out, err := runCLI(t, "", "docs", "--kb", testKB, "-c", "hobbies")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found.")
}

func TestSynonyms(t *testing.T) {
	out, err := runCLI(t, "", "synonyms")
	require.NoError(t, err)
	assert.Contains(t, out, "machine learning: ")

	out, err = runCLI(t, "", "synonyms", "--expand", "ml projects")
	require.NoError(t, err)
	assert.Equal(t, "ml projects machine learning\n", out)
}

func TestNewRouter_ServesFolioRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, err := folio.NewService(context.Background(), folio.ServiceConfig{Source: testKB},
		folio.WithServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer svc.Close()

	router := newRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/folio/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/folio/sessions", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "session_id")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		_, err := newLogger(level, io.Discard)
		assert.NoError(t, err, level)
	}
	_, err := newLogger("loud", io.Discard)
	assert.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FOLIO_TEST_DURATION", "90s")
	t.Setenv("FOLIO_TEST_FLOAT", "2.5")
	t.Setenv("FOLIO_TEST_BAD", "nope")

	assert.Equal(t, "fallback", envOr("FOLIO_TEST_UNSET", "fallback"))
	assert.Equal(t, "90s", envOr("FOLIO_TEST_DURATION", "x"))
	assert.Equal(t, 90.0, envDuration("FOLIO_TEST_DURATION", 0).Seconds())
	assert.Equal(t, 2.5, envFloat("FOLIO_TEST_FLOAT", 0))
	assert.Equal(t, 1.0, envFloat("FOLIO_TEST_BAD", 1))
}
