package events

import "time"

// 事件类型枚举
type EventType string

const (
	// 检查运行生命周期事件
	EventRunStarted  EventType = "run_started"
	EventRunFinished EventType = "run_finished"

	// 单个端点结果事件
	EventProbeCompleted EventType = "probe_completed"

	// 系统级事件
	EventSystemError EventType = "system_error"
	EventListChanged EventType = "list_changed"
)

// 事件优先级
type EventPriority int

const (
	PriorityLow      EventPriority = iota // 批量处理，如统计数据
	PriorityNormal                        // 延迟处理，如单个端点结果
	PriorityHigh                          // 立即处理，如运行开始/结束
	PriorityCritical                      // 紧急处理，如内部缺陷
)

// 事件结构
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // 事件来源组件
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Priority  EventPriority          `json:"priority"`
}
