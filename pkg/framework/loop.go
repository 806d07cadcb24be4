package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the polling period when Loop.Interval is zero.
const DefaultInterval = 50 * time.Millisecond

// Loop is a single threaded cooperative scheduler. Controllers run one
// after another from the goroutine calling Run; other goroutines only
// post messages and wake the loop up. Controllers block through Pause,
// which keeps the yield hooks (input polling, keepalive) running.
type Loop struct {
	Interval time.Duration

	controllers []Controller
	runners     []Runnable
	yields      []YieldFunc
	yielding    bool

	messages messageList
	lock     sync.Mutex

	wakeUpCh chan struct{}
	once     sync.Once
}

type loopIteration struct {
	*Loop
	ctx      context.Context
	time     time.Time
	messages messageList
}

type messageList struct {
	head *messageItem
	tail *messageItem
	size int
}

type messageItem struct {
	msg  Message
	next *messageItem
}

func (l *messageList) append(item *messageItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
	l.size++
}

func (l *messageList) splice(src *messageList) {
	l.head, l.tail, l.size = src.head, src.tail, src.size
	src.head, src.tail, src.size = nil, nil, 0
}

func (l *messageList) concat(lst *messageList) {
	if lst.head == nil {
		return
	}
	if l.head == nil {
		l.head = lst.head
	} else {
		l.tail.next = lst.head
	}
	l.tail = lst.tail
	l.size += lst.size
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

func (l *Loop) init() {
	l.once.Do(func() {
		l.wakeUpCh = make(chan struct{}, 1)
	})
}

// AddController registers controllers to the loop. Controllers which
// are also Runnable are started together with the loop.
func (l *Loop) AddController(ctls ...Controller) *Loop {
	l.controllers = append(l.controllers, ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// OnYield registers hooks executed at every yield point, in order.
func (l *Loop) OnYield(hooks ...YieldFunc) *Loop {
	l.yields = append(l.yields, hooks...)
	return l
}

// Run implements Runnable. It returns the first error a controller
// returns, or the context error.
func (l *Loop) Run(ctx context.Context) error {
	l.init()

	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()
	defer runner.Stop()

	interval := l.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.wakeUpCh:
		}
		if err := l.runIteration(ctx); err != nil {
			return err
		}
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages.append(&messageItem{msg: msg})
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Pause implements Scheduler.
func (l *Loop) Pause(ctx context.Context, d time.Duration) error {
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.Yield(ctx)
}

// Yield implements Scheduler. Hooks do not nest: a yield reached from
// inside a hook returns immediately.
func (l *Loop) Yield(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.yielding {
		return nil
	}
	l.yielding = true
	defer func() { l.yielding = false }()
	for _, hook := range l.yields {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) runIteration(ctx context.Context) error {
	iter := &loopIteration{Loop: l, ctx: ctx, time: time.Now()}
	l.lock.Lock()
	iter.messages.splice(&l.messages)
	l.lock.Unlock()
	defer iter.requeue()
	if err := l.Yield(ctx); err != nil {
		return err
	}
	for _, ctl := range l.controllers {
		if err := ctl.Control(iter); err != nil {
			glog.V(2).Infof("controller stopped loop: %v", err)
			return err
		}
	}
	return nil
}

// requeue puts unprocessed messages back in front of the ones posted
// during this iteration.
func (t *loopIteration) requeue() {
	if t.messages.head == nil {
		return
	}
	t.Loop.lock.Lock()
	t.messages.concat(&t.Loop.messages)
	t.Loop.messages.splice(&t.messages)
	t.Loop.lock.Unlock()
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) Messages() MessageStore {
	return t
}

// MessageStore implementations

type messageContext struct {
	item  *messageItem
	taken bool
	stop  bool
}

func (c *messageContext) CurrentMessage() Message { return c.item.msg }
func (c *messageContext) MessageTaken()           { c.taken = true }
func (c *messageContext) StopProcessing()         { c.stop = true }

func (t *loopIteration) Len() int {
	return t.messages.size
}

func (t *loopIteration) ProcessMessages(proc MessageProcessor) {
	var msgs, remains messageList
	msgs.splice(&t.messages)
	for msgs.head != nil {
		mctx := &messageContext{item: msgs.head}
		msgs.head = msgs.head.next
		msgs.size--
		mctx.item.next = nil
		proc.ProcessMessage(mctx)
		if !mctx.taken {
			remains.append(mctx.item)
		}
		if mctx.stop {
			if msgs.head == nil {
				msgs.tail = nil
			}
			remains.concat(&msgs)
			break
		}
	}
	t.messages = remains
}
