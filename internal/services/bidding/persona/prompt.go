package persona

import (
	"fmt"
	"sort"
	"strings"
)

// PromptContext is the session state rendered into a user prompt.
type PromptContext struct {
	IdeaContent     string
	Phase           string
	Trigger         string
	Round           int
	CreativityScore int
	PreviousLines   []string
	CurrentBids     map[ID]int
	Insight         bool
}

const missingIdea = "未提供创意内容"

// BuildUserPrompt renders the user message sent alongside a persona's
// system prompt.
func BuildUserPrompt(ctx PromptContext) string {
	var b strings.Builder
	idea := strings.TrimSpace(ctx.IdeaContent)
	if idea == "" {
		idea = missingIdea
	}
	fmt.Fprintf(&b, "创意内容：%s\n", idea)
	fmt.Fprintf(&b, "当前阶段：%s\n", ctx.Phase)
	if ctx.Trigger != "" {
		fmt.Fprintf(&b, "触发事件：%s\n", ctx.Trigger)
	}
	if ctx.Round > 0 {
		fmt.Fprintf(&b, "轮次：%d\n", ctx.Round)
	}
	if ctx.CreativityScore > 0 {
		fmt.Fprintf(&b, "创意评分：%d/100\n", ctx.CreativityScore)
	}
	if len(ctx.PreviousLines) > 0 {
		b.WriteString("之前的对话：\n")
		for _, line := range ctx.PreviousLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if len(ctx.CurrentBids) > 0 {
		b.WriteString("当前竞价情况：\n")
		ids := make([]string, 0, len(ctx.CurrentBids))
		for id := range ctx.CurrentBids {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "%s: %d积分\n", id, ctx.CurrentBids[ID(id)])
		}
	}

	if ctx.Insight {
		b.WriteString("\n请用一句话给出你对这个创意最关键的洞察，不超过60字。")
		return b.String()
	}
	switch ctx.Phase {
	case "warmup":
		b.WriteString("\n请简短介绍你自己，并对这个创意给出第一印象。保持角色特色，不超过150字。")
	case "discussion":
		b.WriteString("\n请从你的专业角度深入分析这个创意的优缺点。可以提出问题或与其他专家的观点进行互动。")
	case "bidding":
		b.WriteString("\n请给出你对这个创意的具体竞价金额（80-500积分之间），并说明理由。格式：我出价X积分，因为...")
	default:
		b.WriteString("\n请根据你的专业角色，对这个创意进行评价和分析。")
	}
	return b.String()
}
