package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// AsyncEventBus 异步事件总线，worker 池消费事件，避免慢订阅者阻塞编排主流程
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus 创建异步事件总线
func NewAsyncEventBus(workerNum int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 4
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动异步处理
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop 停止异步处理
func (aeb *AsyncEventBus) Stop() {
	close(aeb.stopChan)
	aeb.wg.Wait()
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			func() {
				defer func() {
					// 订阅者 panic 不能拖垮 worker
					_ = recover()
				}()
				aeb.bus.Publish(event.topic, event.args...)
			}()
		}
	}
}

// PublishAsync 异步发布事件，队列满时丢弃
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
	}
}

// Subscribe 订阅事件
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Unsubscribe 取消订阅
func (aeb *AsyncEventBus) Unsubscribe(topic string, fn interface{}) error {
	return aeb.bus.Unsubscribe(topic, fn)
}

// HasCallback 检查是否有订阅者
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}
