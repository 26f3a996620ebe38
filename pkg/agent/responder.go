// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"strings"
)

// KeywordRule maps a keyword to a canned reply.
type KeywordRule struct {
	Keyword string
	Reply   string
}

// KeywordResponder answers with the reply of the first rule whose keyword
// appears in the content, ignoring case, or with Default.
type KeywordResponder struct {
	Rules   []KeywordRule
	Default string
}

// Respond implements Responder.
func (r KeywordResponder) Respond(_ context.Context, content string) (string, error) {
	lower := strings.ToLower(content)
	for _, rule := range r.Rules {
		if rule.Keyword != "" && strings.Contains(lower, strings.ToLower(rule.Keyword)) {
			return rule.Reply, nil
		}
	}
	return r.Default, nil
}

// KeywordTool selects match when content contains keyword, ignoring case,
// and fallback otherwise.
func KeywordTool(keyword, match, fallback string) ToolSelector {
	keyword = strings.ToLower(keyword)
	return func(content string) string {
		if strings.Contains(strings.ToLower(content), keyword) {
			return match
		}
		return fallback
	}
}
