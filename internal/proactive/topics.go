package proactive

import (
	"strings"

	"github.com/emomate/emomate/internal/chat"
)

// Category is a coarse topic bucket matched from recent conversation.
type Category string

const (
	CategoryNone     Category = ""
	CategoryMovie    Category = "movie"
	CategoryBook     Category = "book"
	CategoryGame     Category = "game"
	CategoryPersonal Category = "personal"
	CategoryEvent    Category = "event"
)

var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryMovie, []string{"电影", "影片", "电视剧", "动漫", "番剧", "导演", "剧情"}},
	{CategoryBook, []string{"书", "小说", "阅读", "作者", "看书"}},
	{CategoryGame, []string{"游戏", "玩", "通关", "打游戏", "开黑"}},
	{CategoryPersonal, []string{"工作", "学习", "累", "烦", "心情", "朋友", "家人"}},
	{CategoryEvent, []string{"周末", "假期", "旅行", "出去", "计划", "约"}},
}

// categorize scans the recent history newest-first and returns the
// first category whose keywords appear.
func categorize(history []chat.Message) Category {
	for i := len(history) - 1; i >= 0; i-- {
		content := history[i].Content
		for _, ck := range categoryKeywords {
			for _, kw := range ck.keywords {
				if strings.Contains(content, kw) {
					return ck.category
				}
			}
		}
	}
	return CategoryNone
}

// topicPhrases are per-tier, per-category conversation starters.
var topicPhrases = map[Tier]map[Category][]string{
	TierShort: {
		CategoryMovie:    {"刚才说的那部片子，你最喜欢哪个角色呀？", "说起来，你最近还有在追剧吗？"},
		CategoryBook:     {"那本书后来看完了吗？", "最近有没有看到什么好看的书呀？"},
		CategoryGame:     {"刚才说的游戏打到哪里啦？", "今天有打算玩一会儿游戏吗？"},
		CategoryPersonal: {"在忙什么呢？要不要休息一下呀？", "刚才聊的事情，后来怎么样了？"},
		CategoryEvent:    {"你说的那个计划，想好去哪里了吗？", "周末的安排定下来了吗？"},
	},
	TierMedium: {
		CategoryMovie:    {"要不要我帮你想想接下来看什么电影？", "你喜欢看什么类型的片子呀？"},
		CategoryBook:     {"要不要聊聊你最近在读的东西？", "你一般喜欢在什么时候看书呀？"},
		CategoryGame:     {"给我讲讲你最喜欢的游戏嘛。", "你玩游戏的时候喜欢一个人玩还是和朋友一起？"},
		CategoryPersonal: {"感觉你今天话不多，还好吗？", "想聊聊今天过得怎么样吗？"},
		CategoryEvent:    {"那个出行计划要不要一起想想细节？", "到时候记得拍照片给我看看呀。"},
	},
	TierLong: {
		CategoryMovie:    {"如果让你推荐一部一定要看的电影，你会选哪部？"},
		CategoryBook:     {"有没有一本书对你影响特别大？讲讲嘛。"},
		CategoryGame:     {"你觉得游戏里最打动你的瞬间是什么？"},
		CategoryPersonal: {"有什么一直想做但还没做的事情吗？", "你最近有什么开心的小目标呀？"},
		CategoryEvent:    {"如果可以随便去一个地方旅行，你想去哪里？"},
	},
}

var genericPhrases = map[Tier][]string{
	TierShort: {
		"在忙吗？累了就休息一下哦。",
		"我在这儿陪着你呢，想聊什么随时说呀。",
		"喝口水伸个懒腰吧，别坐太久啦。",
	},
	TierMedium: {
		"今天过得怎么样呀？",
		"要不要聊点轻松的话题？",
		"给你讲个有意思的事情好不好？",
	},
	TierLong: {
		"好久没听到你说话了，有点想你呢。",
		"有什么心事的话，可以和我说说哦。",
		"最近有没有什么让你印象深刻的事情？",
	},
}

var timeOfDayPhrases = []struct {
	fromHour int
	toHour   int
	phrases  []string
}{
	{5, 11, []string{"早上好呀，今天有什么安排吗？", "吃过早饭了吗？"}},
	{11, 14, []string{"到午饭时间啦，想好吃什么了吗？", "中午记得好好吃饭哦。"}},
	{14, 18, []string{"下午容易犯困，要不要起来活动一下？", "下午茶时间到啦，要不要犒劳一下自己？"}},
	{18, 23, []string{"晚上啦，今天辛苦了。", "晚饭吃了什么呀？"}},
	{23, 29, []string{"很晚了哦，别熬夜太久呀。", "夜深了，早点休息好不好？"}},
}

// timeOfDayChance is the probability of swapping in a time-of-day
// phrase at the medium tier, out of 100.
const timeOfDayChance = 30

// pickPhrase selects a starter for the tier, preferring topic-relevant
// phrases and occasionally a time-of-day phrase at the medium tier.
func (s *Scheduler) pickPhrase(tier Tier, category Category) string {
	if tier == TierMedium && s.rng.Intn(100) < timeOfDayChance {
		if text := s.pickTimeOfDay(); text != "" {
			return text
		}
	}

	if category != CategoryNone {
		if phrases := topicPhrases[tier][category]; len(phrases) > 0 {
			return phrases[s.rng.Intn(len(phrases))]
		}
	}

	phrases := genericPhrases[tier]
	if len(phrases) == 0 {
		return ""
	}
	return phrases[s.rng.Intn(len(phrases))]
}

func (s *Scheduler) pickTimeOfDay() string {
	hour := s.now().Hour()
	for _, slot := range timeOfDayPhrases {
		h := hour
		if slot.toHour > 24 && h < 5 {
			h += 24
		}
		if h >= slot.fromHour && h < slot.toHour {
			return slot.phrases[s.rng.Intn(len(slot.phrases))]
		}
	}
	return ""
}
