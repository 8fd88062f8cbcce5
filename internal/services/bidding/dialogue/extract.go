package dialogue

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
)

// Emotion tags carried by utterances.
const (
	EmotionExcited   = "excited"
	EmotionWorried   = "worried"
	EmotionHappy     = "happy"
	EmotionConfident = "confident"
)

var bidPattern = regexp.MustCompile(`出价\s*(\d+)\s*(?:积分|元)`)

// ExtractBid finds a stated bid such as "我出价200积分" in model text.
func ExtractBid(content string) (int, bool) {
	match := bidPattern.FindStringSubmatch(content)
	if match == nil {
		return 0, false
	}
	amount, err := strconv.Atoi(match[1])
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}

var emotionKeywords = []struct {
	emotion  string
	keywords []string
}{
	{EmotionExcited, []string{"出价", "投资"}},
	{EmotionWorried, []string{"风险", "担心"}},
	{EmotionHappy, []string{"成功", "优秀"}},
	{EmotionConfident, []string{"分析", "专业"}},
}

// DetectEmotion tags content by keyword, defaulting by phase.
func DetectEmotion(content string, phase stage.Phase) string {
	for _, group := range emotionKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(content, keyword) {
				return group.emotion
			}
		}
	}
	switch phase {
	case stage.Warmup, stage.Bidding:
		return EmotionExcited
	case stage.Prediction:
		return EmotionWorried
	case stage.Result:
		return EmotionHappy
	default:
		return EmotionConfident
	}
}
