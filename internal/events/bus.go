package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventBus 接口
type EventBus interface {
	// 发布事件，永不阻塞
	Publish(event Event)

	// 订阅事件，返回事件通道与取消函数
	Subscribe(buffer int) (<-chan Event, func())

	// 启动和停止
	Start() error
	Stop() error

	// 获取统计信息
	GetStats() BusStats
}

// 事件过滤器
type EventFilter struct {
	// 是否推送给订阅者
	ShouldDeliver func(event Event) bool

	// 频率限制（防止过度推送）
	RateLimit time.Duration
}

// EventBus 实现
type eventBus struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	eventChan chan Event

	subscribers map[int]chan Event
	nextSubID   int
	subMu       sync.RWMutex

	filters      map[EventType]EventFilter
	rateLimiters map[EventType]*rateLimiter

	stats   BusStats
	statsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex
	wg        sync.WaitGroup
}

// 统计信息
type BusStats struct {
	TotalEvents      int64                   `json:"total_events"`
	DeliveredEvents  int64                   `json:"delivered_events"`
	DroppedEvents    int64                   `json:"dropped_events"`
	EventsByType     map[EventType]int64     `json:"events_by_type"`
	EventsByPriority map[EventPriority]int64 `json:"events_by_priority"`
	Subscribers      int                     `json:"subscribers"`
	StartTime        time.Time               `json:"start_time"`
}

// 频率限制器
type rateLimiter struct {
	lastTime time.Time
	limit    time.Duration
	mu       sync.Mutex
}

func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastTime) >= rl.limit {
		rl.lastTime = now
		return true
	}
	return false
}

// NewEventBus 创建新的EventBus实例
func NewEventBus(logger *slog.Logger) EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	bus := &eventBus{
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		eventChan:    make(chan Event, 1000), // 缓冲区大小
		subscribers:  make(map[int]chan Event),
		filters:      make(map[EventType]EventFilter),
		rateLimiters: make(map[EventType]*rateLimiter),
		stats: BusStats{
			EventsByType:     make(map[EventType]int64),
			EventsByPriority: make(map[EventPriority]int64),
			StartTime:        time.Now(),
		},
	}

	bus.setupDefaultFilters()

	return bus
}

// 设置默认过滤器
func (eb *eventBus) setupDefaultFilters() {
	always := func(Event) bool { return true }

	// 运行生命周期事件 - 关键事件，立即推送
	eb.filters[EventRunStarted] = EventFilter{ShouldDeliver: always}
	eb.filters[EventRunFinished] = EventFilter{ShouldDeliver: always}

	// 端点结果 - 每个端点只有一次，不限频
	eb.filters[EventProbeCompleted] = EventFilter{ShouldDeliver: always}

	// 系统事件
	eb.filters[EventSystemError] = EventFilter{ShouldDeliver: always}

	// 列表文件变更 - 编辑器保存时可能连续触发
	eb.filters[EventListChanged] = EventFilter{
		ShouldDeliver: always,
		RateLimit:     500 * time.Millisecond,
	}

	for eventType, filter := range eb.filters {
		if filter.RateLimit > 0 {
			eb.rateLimiters[eventType] = &rateLimiter{limit: filter.RateLimit}
		}
	}
}

// Publish 发布事件
func (eb *eventBus) Publish(event Event) {
	eb.runningMu.RLock()
	defer eb.runningMu.RUnlock()

	if !eb.running {
		eb.logger.Debug("EventBus not running, dropping event", "type", event.Type)
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.updateStats(event, "total")

	select {
	case eb.eventChan <- event:
	default:
		// 缓冲区满，丢弃事件
		eb.updateStats(event, "dropped")
		eb.logger.Warn("EventBus buffer full, dropping event", "type", event.Type, "source", event.Source)
	}
}

// Subscribe 注册订阅者；慢速订阅者的事件会被丢弃而不是阻塞总线
func (eb *eventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	eb.subMu.Lock()
	id := eb.nextSubID
	eb.nextSubID++
	eb.subscribers[id] = ch
	eb.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			eb.subMu.Lock()
			if _, ok := eb.subscribers[id]; ok {
				delete(eb.subscribers, id)
				close(ch)
			}
			eb.subMu.Unlock()
		})
	}
}

// Start 启动EventBus
func (eb *eventBus) Start() error {
	eb.runningMu.Lock()
	defer eb.runningMu.Unlock()

	if eb.running {
		return nil
	}

	eb.running = true
	eb.wg.Add(1)

	go eb.eventProcessor()

	eb.logger.Debug("EventBus started")
	return nil
}

// Stop 停止EventBus，关闭所有订阅通道
func (eb *eventBus) Stop() error {
	eb.runningMu.Lock()
	if !eb.running {
		eb.runningMu.Unlock()
		return nil
	}
	eb.running = false
	close(eb.eventChan)
	eb.runningMu.Unlock()

	// 先处理完缓冲区中剩余的事件
	eb.wg.Wait()
	eb.cancel()

	eb.subMu.Lock()
	for id, ch := range eb.subscribers {
		delete(eb.subscribers, id)
		close(ch)
	}
	eb.subMu.Unlock()

	eb.logger.Debug("EventBus stopped")
	return nil
}

// GetStats 获取统计信息
func (eb *eventBus) GetStats() BusStats {
	eb.statsMu.RLock()
	stats := BusStats{
		TotalEvents:      eb.stats.TotalEvents,
		DeliveredEvents:  eb.stats.DeliveredEvents,
		DroppedEvents:    eb.stats.DroppedEvents,
		EventsByType:     make(map[EventType]int64),
		EventsByPriority: make(map[EventPriority]int64),
		StartTime:        eb.stats.StartTime,
	}
	for k, v := range eb.stats.EventsByType {
		stats.EventsByType[k] = v
	}
	for k, v := range eb.stats.EventsByPriority {
		stats.EventsByPriority[k] = v
	}
	eb.statsMu.RUnlock()

	eb.subMu.RLock()
	stats.Subscribers = len(eb.subscribers)
	eb.subMu.RUnlock()

	return stats
}

// 事件处理器
func (eb *eventBus) eventProcessor() {
	defer eb.wg.Done()

	for event := range eb.eventChan {
		eb.processEvent(event)
	}
}

// 处理单个事件
func (eb *eventBus) processEvent(event Event) {
	filter, exists := eb.filters[event.Type]
	if !exists {
		eb.logger.Debug("No filter for event type", "type", event.Type)
		return
	}

	if !filter.ShouldDeliver(event) {
		return
	}

	if limiter, exists := eb.rateLimiters[event.Type]; exists {
		if !limiter.Allow() {
			eb.logger.Debug("Event rate limited", "type", event.Type)
			return
		}
	}

	eb.subMu.RLock()
	defer eb.subMu.RUnlock()

	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
			eb.updateStats(event, "delivered")
		default:
			eb.updateStats(event, "dropped")
		}
	}
}

// 更新统计信息
func (eb *eventBus) updateStats(event Event, statType string) {
	eb.statsMu.Lock()
	defer eb.statsMu.Unlock()

	switch statType {
	case "total":
		eb.stats.TotalEvents++
		eb.stats.EventsByType[event.Type]++
		eb.stats.EventsByPriority[event.Priority]++
	case "delivered":
		eb.stats.DeliveredEvents++
	case "dropped":
		eb.stats.DroppedEvents++
	}
}
