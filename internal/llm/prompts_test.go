package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
)

func TestPromptRegistry_DailyBriefing_DefaultTemplate(t *testing.T) {
	p := NewPromptRegistry()
	items := []entity.RankedItem{{Title: "item one", Source: "rss"}}

	msgs := p.DailyBriefing(items, nil)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != entity.RoleSystem || msgs[1].Role != entity.RoleUser {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "item one") {
		t.Errorf("expected user message to contain item title, got %q", msgs[1].Content)
	}
}

func TestPromptRegistry_LoadFromFile_OverridesDailyBriefing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	content := "[system]\ncustom system prompt\n[user]\ncount={news_count}\n{news_list}\n"
	writeFile(t, path, content)

	p := NewPromptRegistry()
	if err := p.LoadFromFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := []entity.RankedItem{{Title: "a"}, {Title: "b"}}
	msgs := p.DailyBriefing(items, nil)
	if msgs[0].Content != "custom system prompt" {
		t.Errorf("unexpected system content: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[1].Content, "count=2") {
		t.Errorf("expected news_count substitution, got %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[1].Content, "a") || !strings.Contains(msgs[1].Content, "b") {
		t.Errorf("expected news_list substitution to include both items, got %q", msgs[1].Content)
	}
}

func TestPromptRegistry_LoadFromFile_MissingFile(t *testing.T) {
	p := NewPromptRegistry()
	if err := p.LoadFromFile("/nonexistent/path/prompt.txt"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPromptRegistry_LoadFromFile_NoSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	writeFile(t, path, "just some text, no section headers\n")

	p := NewPromptRegistry()
	if err := p.LoadFromFile(path); err == nil {
		t.Fatal("expected error when file has no [system]/[user] sections")
	}
}

func TestPromptRegistry_CategorizeBatch_IncludesAllItemsAndCategories(t *testing.T) {
	p := NewPromptRegistry()
	items := []entity.RankedItem{{Title: "first"}, {Title: "second"}}
	cats := []entity.Category{{ID: "tech", Name: "科技", Keywords: []string{"ai"}}}

	msgs := p.CategorizeBatch(items, cats)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	body := msgs[1].Content
	if !strings.Contains(body, "first") || !strings.Contains(body, "second") {
		t.Errorf("expected batch prompt to list every item, got %q", body)
	}
	if !strings.Contains(body, "tech") {
		t.Errorf("expected batch prompt to list category id, got %q", body)
	}
}

func TestPromptRegistry_CategorizeOne_IncludesTitleAndContent(t *testing.T) {
	p := NewPromptRegistry()
	cats := []entity.Category{{ID: "tech", Name: "科技", Keywords: []string{"ai"}}}

	msgs := p.CategorizeOne("a headline", "the article body", cats)
	body := msgs[1].Content
	if !strings.Contains(body, "a headline") {
		t.Errorf("expected prompt to include title, got %q", body)
	}
	if !strings.Contains(body, "the article body") {
		t.Errorf("expected prompt to include content, got %q", body)
	}
}

func TestPromptRegistry_CategorizeOne_EmptyContentNotesMissingBody(t *testing.T) {
	p := NewPromptRegistry()
	cats := []entity.Category{{ID: "tech", Name: "科技"}}

	msgs := p.CategorizeOne("a headline", "", cats)
	if !strings.Contains(msgs[1].Content, "无正文内容") {
		t.Errorf("expected prompt to note missing body text, got %q", msgs[1].Content)
	}
}

func TestTruncateRunes_CutsAndMarksLongInput(t *testing.T) {
	long := strings.Repeat("测", 50)
	got := truncateRunes(long, 10)
	if got != strings.Repeat("测", 10)+"……" {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestTruncateRunes_LeavesShortInputUnchanged(t *testing.T) {
	short := "short"
	if got := truncateRunes(short, 10); got != short {
		t.Errorf("expected unchanged input, got %q", got)
	}
}

func TestFormatNewsListDetailed_IncludesContentPreviewWhenBodyPresent(t *testing.T) {
	items := []entity.RankedItem{{Title: "headline", Source: "rss"}}
	bodies := map[string]entity.FetchedBody{
		items[0].ID(): {BodyText: "the full article text"},
	}
	out := formatNewsListDetailed(items, bodies)
	if !strings.Contains(out, "the full article text") {
		t.Errorf("expected content preview in output, got %q", out)
	}
}

func TestFormatNewsListDetailed_OmitsPreviewWithoutBody(t *testing.T) {
	items := []entity.RankedItem{{Title: "headline", Source: "rss"}}
	out := formatNewsListDetailed(items, nil)
	if strings.Count(out, "\n") != 1 {
		t.Errorf("expected exactly one line with no content preview, got %q", out)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}
}
