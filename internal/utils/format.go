// Package utils 提供报告与日志使用的格式化函数
package utils

import (
	"fmt"
	"time"
)

// FormatElapsed 友好格式化耗时
// 用法: utils.FormatElapsed(verdict.Elapsed)
func FormatElapsed(d time.Duration) string {
	if d <= 0 {
		return "0ms"
	}

	ms := float64(d.Nanoseconds()) / 1e6
	switch {
	case ms < 1:
		us := float64(d.Nanoseconds()) / 1e3
		if us < 1 {
			return "< 1μs"
		}
		return fmt.Sprintf("%.0fμs", us)
	case ms < 1000:
		return fmt.Sprintf("%.0fms", ms)
	case ms < 60000:
		seconds := ms / 1000
		if seconds < 10 {
			return fmt.Sprintf("%.1fs", seconds)
		}
		return fmt.Sprintf("%.0fs", seconds)
	default:
		minutes := int(ms / 60000)
		seconds := (ms - float64(minutes*60000)) / 1000
		return fmt.Sprintf("%dm%.0fs", minutes, seconds)
	}
}

// FormatRatio 格式化 "可达/总数 (百分比)"
// 用法: utils.FormatRatio(len(report.Reachable), report.Total())
func FormatRatio(part, total int) string {
	return fmt.Sprintf("%d/%d (%s)", part, total, FormatPercentage(part, total))
}

// FormatPercentage 格式化百分比
func FormatPercentage(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}
