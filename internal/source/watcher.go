package source

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bt-tracker-checker/config"
	"bt-tracker-checker/internal/events"
)

const debounceDelay = 500 * time.Millisecond

// ListWatcher reloads the tracker list file whenever it changes and hands
// the new list to the registered callbacks.
type ListWatcher struct {
	path   string
	dedupe bool

	mutex         sync.Mutex
	watcher       *fsnotify.Watcher
	logger        *slog.Logger
	callbacks     []func([]string)
	debounceTimer *time.Timer
	eventBus      events.EventBus
	done          chan struct{}
	closeOnce     sync.Once
}

// NewListWatcher starts watching cfg.File.
func NewListWatcher(cfg config.InputConfig, logger *slog.Logger) (*ListWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.File); err != nil {
		return nil, fmt.Errorf("failed to get list file info: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(cfg.File); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch list file: %w", err)
	}

	lw := &ListWatcher{
		path:    cfg.File,
		dedupe:  cfg.Dedupe,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go lw.watchLoop()
	return lw, nil
}

// AddChangeCallback registers fn to receive every successfully reloaded list.
func (lw *ListWatcher) AddChangeCallback(fn func([]string)) {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	lw.callbacks = append(lw.callbacks, fn)
}

// SetEventBus 设置EventBus事件总线
func (lw *ListWatcher) SetEventBus(bus events.EventBus) {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	lw.eventBus = bus
}

// Close stops watching. Pending reloads are cancelled.
func (lw *ListWatcher) Close() error {
	var err error
	lw.closeOnce.Do(func() {
		close(lw.done)
		lw.mutex.Lock()
		if lw.debounceTimer != nil {
			lw.debounceTimer.Stop()
		}
		lw.mutex.Unlock()
		err = lw.watcher.Close()
	})
	return err
}

func (lw *ListWatcher) watchLoop() {
	for {
		select {
		case <-lw.done:
			return

		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				lw.scheduleReload()
			}

			// editors that save by rename replace the watched inode
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				time.Sleep(100 * time.Millisecond)
				if _, err := os.Stat(lw.path); err == nil {
					if err := lw.watcher.Add(lw.path); err == nil {
						lw.logger.Info(fmt.Sprintf("🔄 [列表监听] 重新监听列表文件: %s", lw.path))
						lw.scheduleReload()
					}
				}
			}

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Error(fmt.Sprintf("⚠️ [列表监听] 文件监听错误: %v", err))
		}
	}
}

func (lw *ListWatcher) scheduleReload() {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()

	if lw.debounceTimer != nil {
		lw.debounceTimer.Stop()
	}
	lw.debounceTimer = time.AfterFunc(debounceDelay, lw.reload)
}

func (lw *ListWatcher) reload() {
	select {
	case <-lw.done:
		return
	default:
	}

	list, err := LoadFile(lw.path, lw.dedupe)
	if err != nil {
		lw.logger.Warn(fmt.Sprintf("⚠️ [列表监听] 列表重新加载失败，保持等待: %v", err))
		return
	}
	lw.logger.Info(fmt.Sprintf("🔄 [列表监听] 检测到列表变更 - 端点数: %d", len(list)), "file", lw.path)

	lw.mutex.Lock()
	callbacks := make([]func([]string), len(lw.callbacks))
	copy(callbacks, lw.callbacks)
	bus := lw.eventBus
	lw.mutex.Unlock()

	if bus != nil {
		bus.Publish(events.Event{
			Type:     events.EventListChanged,
			Source:   "list_watcher",
			Priority: events.PriorityNormal,
			Data: map[string]interface{}{
				"file":  lw.path,
				"total": len(list),
			},
		})
	}

	for _, cb := range callbacks {
		cb(list)
	}
}
