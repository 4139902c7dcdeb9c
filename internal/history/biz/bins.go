package biz

import (
	"time"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
)

// BinByDate 按 now 所在时区的自然日把对话分到 Today / Yesterday /
// Last 7 Days / Last 30 Days / Older，空分组不返回
func BinByDate(items []*types.ChatHistoryItem, now time.Time) []types.ChatGroup {
	if len(items) == 0 {
		return []types.ChatGroup{}
	}

	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)
	lastMonth := today.AddDate(0, -1, 0)

	labels := []string{types.BinToday, types.BinYesterday, types.BinLastWeek, types.BinLastMonth, types.BinOlder}
	bins := make(map[string][]*types.ChatHistoryItem, len(labels))

	for _, item := range items {
		ts := item.Timestamp.In(loc)
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)

		var label string
		switch {
		case day.Equal(today):
			label = types.BinToday
		case day.Equal(yesterday):
			label = types.BinYesterday
		case !ts.Before(lastWeek):
			label = types.BinLastWeek
		case !ts.Before(lastMonth):
			label = types.BinLastMonth
		default:
			label = types.BinOlder
		}
		bins[label] = append(bins[label], item)
	}

	groups := make([]types.ChatGroup, 0, len(labels))
	for _, label := range labels {
		if len(bins[label]) == 0 {
			continue
		}
		groups = append(groups, types.ChatGroup{Label: label, Items: bins[label]})
	}
	return groups
}
