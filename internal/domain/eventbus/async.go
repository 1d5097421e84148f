package eventbus

import (
	"fmt"
	"sync"

	"formula-ocr-server/internal/platform/logging"

	evbus "github.com/asaskevich/EventBus"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1000
)

// AsyncEventBus 异步事件总线
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	// mu orders PublishAsync sends before the close of stopChan.
	mu        sync.RWMutex
	stopped   bool
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	logger    *logging.Logger
	startOnce sync.Once
	stopOnce  sync.Once
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus 创建异步事件总线
func NewAsyncEventBus(workerNum int, logger *logging.Logger) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = defaultWorkers
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, defaultQueueSize),
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

// Start 启动异步处理
func (aeb *AsyncEventBus) Start() {
	aeb.startOnce.Do(func() {
		for i := 0; i < aeb.workerNum; i++ {
			aeb.wg.Add(1)
			go aeb.worker()
		}
	})
}

// Stop drains queued events and stops the workers. Events queued on a bus
// that was never started are dispatched on the calling goroutine.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		close(aeb.stopChan)
		aeb.mu.Unlock()

		aeb.wg.Wait()
		for {
			select {
			case event := <-aeb.workChan:
				aeb.dispatch(event)
			default:
				return
			}
		}
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		case <-aeb.stopChan:
			for {
				select {
				case event := <-aeb.workChan:
					aeb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("事件", "处理事件 %s 时发生 panic: %v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish 发布事件（同步）
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event for the worker pool. The event is dropped when
// the queue is full or the bus has been stopped.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()

	if aeb.stopped {
		aeb.logger.WarnTag("事件", "事件总线已停止, 丢弃事件: %s", topic)
		return false
	}

	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		aeb.pending.Done()
		aeb.logger.WarnTag("事件", "事件队列已满, 丢弃事件: %s", topic)
		return false
	}
}

// Subscribe 订阅事件
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	if err := aeb.bus.Subscribe(topic, fn); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe 取消订阅
func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

// HasCallback 检查是否有订阅者
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// WaitAsync blocks until every queued event has been handled.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.pending.Wait()
}
