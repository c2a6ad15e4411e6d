// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "github.com/AleutianAI/folio/services/folio/kb"

// Topic is the most recently answered document.
type Topic struct {
	Category string
	Document kb.Document
}

// Conversation is the per-session state threaded through every engine call.
//
// # Description
//
//	The engine never keeps a Conversation. Callers pass the current value in
//	and store the updated value from the Result; the zero value is a fresh
//	session. Each call works on a copy, so the caller's value is never
//	modified in place.
//
// # Thread Safety
//
//	A Conversation must have a single writer. Serialize turns per session.
type Conversation struct {
	// PendingFollowUps are the prompts offered after the last answer.
	PendingFollowUps []string

	// FollowUpCursor indexes PendingFollowUps (mod length) for the next
	// affirmation.
	FollowUpCursor int

	// LastTopic is nil until a document has been answered.
	LastTopic *Topic

	// DidYouMean holds the suggestions of the last fallback, empty otherwise.
	DidYouMean []kb.Document
}

// AwaitingFollowUp reports whether an affirmation would consume a follow-up.
func (c Conversation) AwaitingFollowUp() bool {
	return len(c.PendingFollowUps) > 0
}

// clone returns a copy that shares no slices or pointers with c.
func (c Conversation) clone() Conversation {
	out := Conversation{
		FollowUpCursor: c.FollowUpCursor,
	}
	if len(c.PendingFollowUps) > 0 {
		out.PendingFollowUps = append([]string(nil), c.PendingFollowUps...)
	}
	if len(c.DidYouMean) > 0 {
		out.DidYouMean = append([]kb.Document(nil), c.DidYouMean...)
	}
	if c.LastTopic != nil {
		t := *c.LastTopic
		out.LastTopic = &t
	}
	if out.FollowUpCursor < 0 {
		out.FollowUpCursor = 0
	}
	return out
}
