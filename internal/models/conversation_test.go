package models

import (
	"slices"
	"testing"
)

func TestApplyMode(t *testing.T) {
	t.Parallel()

	conv := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "two"},
	}
	if got := ApplyMode(ModeContinuous, conv); !slices.Equal(got, conv) {
		t.Errorf("continuous = %+v; want unchanged", got)
	}
	want := []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "two"}}
	if got := ApplyMode(ModeSingle, conv); !slices.Equal(got, want) {
		t.Errorf("single = %+v; want %+v", got, want)
	}
}

func TestWithSystemPrompt(t *testing.T) {
	t.Parallel()

	conv := []Message{{Role: RoleUser, Content: "hi"}}
	got := WithSystemPrompt("be kind", conv)
	if len(got) != 2 || got[0] != (Message{Role: RoleSystem, Content: "be kind"}) {
		t.Errorf("prepended = %+v", got)
	}
	if len(conv) != 1 {
		t.Error("input slice modified")
	}

	existing := []Message{{Role: RoleSystem, Content: "mine"}, {Role: RoleUser, Content: "hi"}}
	if got := WithSystemPrompt("be kind", existing); !slices.Equal(got, existing) {
		t.Errorf("existing system message replaced: %+v", got)
	}
}

func TestSplitSystem(t *testing.T) {
	t.Parallel()

	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: " "},
		{Role: RoleSystem, Content: "b"},
	})
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Role != RoleUser {
		t.Errorf("rest = %+v", rest)
	}
}

func TestChunkFromResult(t *testing.T) {
	t.Parallel()

	c := ChunkFromResult(Result{Model: "deepseek", Content: "all", FinishReason: "stop"})
	if !c.Done || c.Content != "all" || c.Model != "deepseek" || c.FinishReason != "stop" {
		t.Errorf("chunk = %+v", c)
	}
	if e := ChunkFromError("m", nil); !e.Done || e.Error != "Unknown error occurred" {
		t.Errorf("nil error chunk = %+v", e)
	}
}

func TestDefaultCatalog_IDsUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, spec := range DefaultCatalog() {
		if seen[spec.ID] {
			t.Errorf("duplicate id %s", spec.ID)
		}
		seen[spec.ID] = true
	}
}
