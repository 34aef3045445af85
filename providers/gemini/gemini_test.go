// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/jcanyelles/weft/pkg/llm"
)

func TestWithModel(t *testing.T) {
	opt := WithModel("gemini-1.5-pro")
	p := &Provider{model: "gemini-2.0-flash"}
	opt(p)
	if p.model != "gemini-1.5-pro" {
		t.Errorf("expected model gemini-1.5-pro, got %s", p.model)
	}
}

func TestConvertMessages(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there"},
	}

	contents, systemInstruction := convertMessages(messages)

	if systemInstruction != "You are helpful" {
		t.Errorf("expected system instruction 'You are helpful', got %s", systemInstruction)
	}

	// Should have 2 contents (user and assistant), system is extracted
	if len(contents) != 2 {
		t.Errorf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("expected first role user, got %s", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("expected second role model, got %s", contents[1].Role)
	}
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: "Hello, "}, {Text: "world"}},
				},
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		},
	}

	got := convertResponse(resp)
	if got.Content != "Hello, world" {
		t.Errorf("expected concatenated content, got %q", got.Content)
	}
	if got.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", got.Usage.TotalTokens)
	}
}
