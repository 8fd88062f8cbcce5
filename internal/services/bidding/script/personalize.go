package script

import (
	"strconv"
	"strings"
)

var (
	highScoreReplacer = strings.NewReplacer("很有意思", "非常出色", "不错", "令人印象深刻")
	lowScoreReplacer  = strings.NewReplacer("很有意思", "需要改进", "不错", "有提升空间")
)

// Personalize adjusts tone by creativity score band and rewrites ordinal
// phrases for later rounds. It is deterministic.
func Personalize(content string, ctx Context) string {
	switch {
	case ctx.CreativityScore > 80:
		content = highScoreReplacer.Replace(content)
	case ctx.CreativityScore > 0 && ctx.CreativityScore < 50:
		content = lowScoreReplacer.Replace(content)
	}
	if ctx.Round > 1 {
		content = strings.ReplaceAll(content, "第一次", "第"+strconv.Itoa(ctx.Round)+"次")
	}
	return content
}
