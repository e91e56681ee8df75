package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zhanzhaozzz/newsradar/internal/domain/entity"
)

const (
	systemAnalyst = "你是一位资深新闻分析师，擅长从海量信息中提炼关键洞察，语言简洁、判断克制。"
	systemCategorizer = "你是一位新闻分类专家，严格按照给定的类别体系对新闻进行分类，只输出要求的结构化结果。"
)

// PromptRegistry renders the fixed set of prompt templates the Analyzer
// uses for each of its sub-tasks. Templates are plain format strings rather
// than a templating engine, matching the substitution style of the corpus
// this was distilled from.
type PromptRegistry struct {
	override *promptOverride
}

// promptOverride holds a custom daily-briefing system/user template pair
// loaded from a prompt file, used in place of the built-in templates when
// configured.
type promptOverride struct {
	system string
	user   string
}

// NewPromptRegistry returns a ready-to-use registry with no file override.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{}
}

// LoadFromFile reads a prompt override file and applies it to the daily
// briefing sub-task. The file has two sections, `[system]` and `[user]`,
// each followed by its template text until the next header or EOF. The
// user section may contain a {news_list} token, substituted via
// strings.Replacer with the rendered item list.
func (p *PromptRegistry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("llm: load prompt file: %w", err)
	}

	sections := map[string]string{}
	var current string
	var body strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(body.String())
		}
		body.Reset()
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "[system]" || trimmed == "[user]" {
			flush()
			current = strings.Trim(trimmed, "[]")
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	if sections["system"] == "" && sections["user"] == "" {
		return fmt.Errorf("llm: prompt file %s has no [system] or [user] section", path)
	}
	p.override = &promptOverride{system: sections["system"], user: sections["user"]}
	return nil
}

// truncateRunes cuts s to at most n runes, appending an ellipsis marker
// when it had to cut. Truncation is rune-aware since these prompts are
// Chinese-language text where a byte-oriented cut would split a character.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "……"
}

// formatNewsListDetailed renders one line per item, including source and
// rank when available, plus a content preview truncated to 200 characters
// when a fetched body is present in bodies. bodies may be nil, in which
// case every item renders without a preview line.
func formatNewsListDetailed(items []entity.RankedItem, bodies map[string]entity.FetchedBody) string {
	const previewChars = 200
	var b strings.Builder
	for i, item := range items {
		rank := 0
		if len(item.Ranks) > 0 {
			rank = item.Ranks[0]
		}
		fmt.Fprintf(&b, "%d. [%s] %s（排名：%d，出现次数：%d）\n", i+1, item.Source, item.Title, rank, item.AppearanceCount)
		if body, ok := bodies[item.ID()]; ok && body.BodyText != "" {
			fmt.Fprintf(&b, "   %s\n", truncateRunes(body.BodyText, previewChars))
		}
	}
	return b.String()
}

// formatNewsListShort renders a bare numbered title list, for prompts where
// source/rank context would only waste tokens.
func formatNewsListShort(items []entity.RankedItem) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
	}
	return b.String()
}

// DailyBriefing renders the system+user message pair for the daily-briefing
// sub-task. bodies supplies the per-item content preview; pass nil to
// render titles only.
func (p *PromptRegistry) DailyBriefing(items []entity.RankedItem, bodies map[string]entity.FetchedBody) []entity.ChatMessage {
	if p.override != nil {
		replacer := strings.NewReplacer(
			"{news_list}", formatNewsListDetailed(items, bodies),
			"{news_count}", strconv.Itoa(len(items)),
		)
		return []entity.ChatMessage{
			{Role: entity.RoleSystem, Content: replacer.Replace(p.override.system)},
			{Role: entity.RoleUser, Content: replacer.Replace(p.override.user)},
		}
	}

	user := fmt.Sprintf(
		"以下是今日收集到的热点新闻列表：\n\n%s\n请基于以上新闻，撰写一份简明的每日简报，"+
			"涵盖今日最重要的趋势和事件，200-400字，不要逐条复述标题。",
		formatNewsListDetailed(items, bodies),
	)
	return []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemAnalyst},
		{Role: entity.RoleUser, Content: user},
	}
}

// categorizeContentChars bounds how much of an item's fetched body
// CategorizeOne includes alongside its title, so one long article doesn't
// dominate the prompt budget.
const categorizeContentChars = 2000

// CategorizeOne renders the message pair for classifying a single item,
// by title and (if available) a truncated content excerpt, against the
// given category set. The response is expected as a JSON object matching
// CategoryResult's fields.
func (p *PromptRegistry) CategorizeOne(title, content string, categories []entity.Category) []entity.ChatMessage {
	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, "- %s（%s）：关键词 %s\n", c.Name, c.ID, strings.Join(c.Keywords, "、"))
	}

	contentSection := "（无正文内容，仅依据标题判断）"
	if content != "" {
		contentSection = truncateRunes(content, categorizeContentChars)
	}

	user := fmt.Sprintf(
		"候选类别：\n%s\n待分类新闻标题：%s\n\n正文：\n%s\n\n"+
			"请输出 JSON，字段为 primary（主类别 id）、secondary（次类别 id，没有则为空字符串）、"+
			"confidence（0-100 的整数置信度）、reason（一句话理由）。只输出 JSON，不要额外文字。",
		cats.String(), title, contentSection,
	)
	return []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemCategorizer},
		{Role: entity.RoleUser, Content: user},
	}
}

// CategorizeBatch renders the message pair for classifying every item in
// one round trip, for callers that would rather pay one larger prompt than
// fan out N small ones. The response is expected as a JSON array, one
// object per input item in order, with the same fields as CategorizeOne.
func (p *PromptRegistry) CategorizeBatch(items []entity.RankedItem, categories []entity.Category) []entity.ChatMessage {
	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, "- %s（%s）：关键词 %s\n", c.Name, c.ID, strings.Join(c.Keywords, "、"))
	}

	user := fmt.Sprintf(
		"候选类别：\n%s\n待分类新闻标题列表：\n%s\n"+
			"请输出 JSON 数组，数组长度必须与新闻列表一致，按输入顺序对应；每个元素字段为 "+
			"primary（主类别 id）、secondary（次类别 id，没有则为空字符串）、confidence（0-100 的整数置信度）、"+
			"reason（一句话理由）。只输出 JSON 数组，不要额外文字。",
		cats.String(), formatNewsListShort(items),
	)
	return []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemCategorizer},
		{Role: entity.RoleUser, Content: user},
	}
}

// ExtractInsights renders the message pair for the insight-extraction
// sub-task. The response is expected as a numbered or bulleted list where
// each entry opens with a bracketed domain marker, e.g. "1. [科技] ...",
// matching the marker convention parseInsights looks for.
func (p *PromptRegistry) ExtractInsights(items []entity.RankedItem) []entity.ChatMessage {
	user := fmt.Sprintf(
		"以下是今日新闻标题列表：\n\n%s\n请提炼出 3-8 条跨新闻的关键洞察（趋势、关联、异常信号）。"+
			"按如下格式逐条输出，每条一行：\n1. [所属领域] 一句话洞察\n2. [所属领域] 一句话洞察\n"+
			"……\n只输出编号列表，不要输出 JSON，不要添加其他说明文字。",
		formatNewsListShort(items),
	)
	return []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemAnalyst},
		{Role: entity.RoleUser, Content: user},
	}
}

// summarizeContentChars bounds how much of an item's fetched body
// Summarize includes as source material for the requested summary.
const summarizeContentChars = 3000

// Summarize renders the message pair for summarizing a single item's body
// text to the given target length in characters.
func (p *PromptRegistry) Summarize(title, bodyText string, targetChars int) []entity.ChatMessage {
	user := fmt.Sprintf(
		"标题：%s\n\n正文：\n%s\n\n请将以上内容总结为 %d 字以内的摘要，保留关键事实，不要添加评论。",
		title, truncateRunes(bodyText, summarizeContentChars), targetChars,
	)
	return []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemAnalyst},
		{Role: entity.RoleUser, Content: user},
	}
}

// deepResearchContentChars bounds the per-item content preview DeepResearch
// includes in its detailed news list, smaller than categorize's or
// summarize's since the prompt already carries the full item list plus
// every extracted insight.
const deepResearchContentChars = 1000

// DeepResearch renders the message pair for the deep-research sub-task,
// which asks for a longer structured write-up across the full corpus and
// its already-extracted insights. bodies supplies the per-item content
// preview (truncated to deepResearchContentChars); pass nil for titles
// only.
func (p *PromptRegistry) DeepResearch(items []entity.RankedItem, insights []entity.Insight, bodies map[string]entity.FetchedBody) []entity.ChatMessage {
	var ins strings.Builder
	for _, i := range insights {
		fmt.Fprintf(&ins, "- [%s] %s\n", i.Domain, i.Content)
	}

	previews := map[string]entity.FetchedBody{}
	for id, body := range bodies {
		body.BodyText = truncateRunes(body.BodyText, deepResearchContentChars)
		previews[id] = body
	}

	user := fmt.Sprintf(
		"今日新闻：\n%s\n已提炼的洞察：\n%s\n"+
			"请基于以上信息撰写一份深度研究报告，包含背景、核心事件分析、影响评估和后续关注点四部分，"+
			"每部分使用小标题，总长度 800-1500 字。",
		formatNewsListDetailed(items, previews), ins.String(),
	)
	return []entity.ChatMessage{
		{Role: entity.RoleSystem, Content: systemAnalyst},
		{Role: entity.RoleUser, Content: user},
	}
}
