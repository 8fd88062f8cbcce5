package script

import (
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
)

// DefaultTemplates returns the built-in template bank.
func DefaultTemplates() []Template {
	return []Template{
		{
			ID:      "tech_warmup_intro",
			Phases:  []stage.Phase{stage.Warmup},
			Trigger: stage.OpeningIntroductions,
			Persona: persona.TechPioneer,
			Weight:  1.0,
			Variants: []Variant{
				{Content: "大家好！我是艾克斯，专注于从技术角度分析创意的可行性。今天这个创意很有意思，让我们深入探讨一下技术实现的细节。", Emotion: "confident"},
				{Content: "各位同行，艾克斯在此！这是我第一次看到这个方向的创意，我会从架构设计和技术复杂度角度给出专业评估。", Emotion: "confident"},
			},
		},
		{
			ID:      "business_warmup_intro",
			Phases:  []stage.Phase{stage.Warmup},
			Trigger: stage.OpeningIntroductions,
			Persona: persona.BusinessTycoon,
			Weight:  1.0,
			Variants: []Variant{
				{Content: "欢迎来到创意竞价现场！我是老王，做生意就一个字：赚！让我看看这个创意的商业潜力有多大。", Emotion: "excited"},
				{Content: "朋友们好！老王来了！今天用商业嗅觉评估这个创意能否在市场上赚到真金白银。", Emotion: "confident"},
			},
		},
		{
			ID:      "artist_warmup_intro",
			Phases:  []stage.Phase{stage.Warmup},
			Trigger: stage.OpeningIntroductions,
			Persona: persona.Artist,
			Weight:  0.9,
			Variants: []Variant{
				{Content: "大家好，我是小琳~ 好的产品要有温度，能打动人心。这个创意不错，我很期待它背后的故事。", Emotion: "happy"},
			},
		},
		{
			ID:      "trend_warmup_intro",
			Phases:  []stage.Phase{stage.Warmup},
			Trigger: stage.OpeningIntroductions,
			Persona: persona.TrendMaster,
			Weight:  0.9,
			Variants: []Variant{
				{Content: "家人们好！阿伦上线！流量密码被我找到了吗？先看看这个创意有没有爆款潜质！", Emotion: "excited"},
			},
		},
		{
			ID:      "scholar_warmup_intro",
			Phases:  []stage.Phase{stage.Warmup},
			Trigger: stage.OpeningIntroductions,
			Persona: persona.Scholar,
			Weight:  0.8,
			Variants: []Variant{
				{Content: "各位好，我是李博。我会从理论基础和长期价值的角度审视这个创意，希望讨论严谨一些。", Emotion: "confident"},
			},
		},
		{
			ID:      "warmup_interactions",
			Phases:  []stage.Phase{stage.Warmup},
			Trigger: stage.PersonalityInteractions,
			Weight:  0.7,
			Variants: []Variant{
				{Content: "老王，你先别急着算账，技术上能不能做出来才是关键！", Emotion: "confident"},
				{Content: "艾克斯又开始讲架构了，我只关心用户会不会喜欢它~", Emotion: "happy"},
				{Content: "各位先别争，这个赛道的热度我已经帮大家查过了，很有意思！", Emotion: "excited"},
			},
		},
		{
			ID:      "tech_discussion_analysis",
			Phases:  []stage.Phase{stage.Discussion},
			Trigger: stage.TechnicalAnalysis,
			Persona: persona.TechPioneer,
			Weight:  0.8,
			Variants: []Variant{
				{
					Content:    "从技术架构角度来看，这个创意需要考虑可扩展性和维护成本。我初步评估技术复杂度为中等偏上。",
					Emotion:    "confident",
					Conditions: []Condition{{Kind: CreativityScore, Op: Range, Value: 60, Max: 80}},
				},
				{
					Content:    "这个技术方案相当有挑战性！需要处理大量并发请求和数据一致性问题，但正是这种挑战让我兴奋！",
					Emotion:    "excited",
					Conditions: []Condition{{Kind: CreativityScore, Op: GreaterThan, Value: 80}},
				},
				{
					Content:    "坦白说，技术上的风险不小，核心模块还需要更多验证，我有点担心落地周期。",
					Emotion:    "worried",
					Conditions: []Condition{{Kind: CreativityScore, Op: LessThan, Value: 60}},
				},
			},
		},
		{
			ID:      "scholar_discussion_analysis",
			Phases:  []stage.Phase{stage.Discussion},
			Trigger: stage.TechnicalAnalysis,
			Persona: persona.Scholar,
			Weight:  0.6,
			Variants: []Variant{
				{Content: "从学术研究的角度，这个方向已有不少文献支撑，但创新点还需要更清晰地界定。", Emotion: "confident"},
			},
		},
		{
			ID:      "creativity_evaluation_script",
			Phases:  []stage.Phase{stage.Discussion},
			Trigger: stage.CreativityEvaluation,
			Weight:  1.0,
			Variants: []Variant{
				{Content: "综合来看，这个创意不错，市场需求真实存在，关键在于执行。", Emotion: "confident"},
				{Content: "我给这个创意的第一次评估是：方向很有意思，但细节需要打磨。", Emotion: "confident"},
			},
		},
		{
			ID:      "improvement_suggestions_script",
			Phases:  []stage.Phase{stage.Discussion},
			Trigger: stage.ImprovementSuggestions,
			Weight:  0.8,
			Variants: []Variant{
				{Content: "建议先聚焦一个核心场景，把最小可行产品做扎实，再考虑扩展。", Emotion: "confident"},
				{Content: "如果能补充用户调研数据，这个创意的说服力会强很多。", Emotion: "confident"},
				{
					Content:    "这个想法很有意思，但目标用户还不够清晰，建议重新梳理一下定位。",
					Emotion:    "worried",
					Conditions: []Condition{{Kind: CreativityScore, Op: LessThan, Value: 50}},
				},
			},
		},
		{
			ID:      "enhancement_analysis_script",
			Phases:  []stage.Phase{stage.Discussion},
			Trigger: stage.CreativeEnhancementAnalysis,
			Weight:  0.8,
			Variants: []Variant{
				{Content: "补充的信息很关键！这让整个创意的逻辑更完整了，我要重新评估一下。", Emotion: "excited"},
				{Content: "感谢补充，这回答了我之前的疑问，商业闭环清晰了不少。", Emotion: "happy"},
			},
		},
		{
			ID:      "competitive_bidding",
			Phases:  []stage.Phase{stage.Bidding},
			Trigger: stage.CompetitiveBanter,
			Weight:  0.9,
			Variants: []Variant{
				{Content: "看来大家都很有信心！但是我相信我的分析更加准确，让我提高一下竞价！", Emotion: "excited", BidRange: BidRange{Min: 100, Max: 200}},
				{Content: "哈哈，各位的眼光都不错！不过这个价格还远远不能体现真正的价值，我要出个让大家惊讶的价格！", Emotion: "confident", BidRange: BidRange{Min: 200, Max: 300}},
				{Content: "等等等等！你们都太保守了！这个创意的潜力被严重低估了，让我来正确定价！", Emotion: "excited", BidRange: BidRange{Min: 150, Max: 250}},
			},
		},
		{
			ID:      "competitive_bidding_high",
			Phases:  []stage.Phase{stage.Bidding},
			Trigger: stage.CompetitiveBanter,
			Weight:  0.5,
			Variants: []Variant{
				{
					Content:    "现在的最高价已经不低了，但我依然看好，继续加价！",
					Emotion:    "confident",
					Conditions: []Condition{{Kind: HighestBid, Op: GreaterThan, Value: 200}},
					BidRange:   BidRange{Min: 220, Max: 320},
				},
				{
					Content:    "价格还在合理区间，我先稳一手，小幅加价。",
					Emotion:    "confident",
					Conditions: []Condition{{Kind: HighestBid, Op: LessThan, Value: 201}},
					BidRange:   BidRange{Min: 80, Max: 150},
				},
			},
		},
		{
			ID:      "final_bidding_script",
			Phases:  []stage.Phase{stage.Bidding},
			Trigger: stage.FinalBiddingDecision,
			Weight:  1.0,
			Variants: []Variant{
				{Content: "最后时刻了，我经过深思熟虑，决定出价！", Emotion: "excited", BidRange: BidRange{Min: 150, Max: 300}},
				{Content: "风险和收益我都算清楚了，这是我的最终报价。", Emotion: "confident", BidRange: BidRange{Min: 120, Max: 250}},
			},
		},
		{
			ID:        "stage_transition",
			AllPhases: true,
			Trigger:   stage.TransitionSegments,
			Weight:    0.6,
			Variants: []Variant{
				{Content: "接下来进入更深入的分析阶段，大家准备好了吗？", Emotion: "excited"},
				{Content: "刚才的讨论很精彩！让我们继续深入探讨...", Emotion: "confident"},
				{Content: "时间过得真快！现在情况变得更加有趣了...", Emotion: "excited"},
			},
		},
		{
			ID:      "victory_celebration",
			Phases:  []stage.Phase{stage.Result},
			Trigger: stage.CelebrationSequences,
			Weight:  1.0,
			Variants: []Variant{
				{Content: "恭喜！这是一个非常公平和准确的结果！我为参与这次精彩的竞价感到荣幸。", Emotion: "happy"},
				{Content: "虽然没有获胜，但这个过程让我学到了很多。下次我会做得更好！", Emotion: "happy"},
				{Content: "太棒了！这个结果完全符合我的预期，证明了我的分析能力！", Emotion: "excited"},
			},
		},
	}
}
