package collector

import (
  "errors"
  "sync"

  "github.com/gammazero/deque"
  "github.com/robertof/go-mijia-exporter/device"
)

var ErrQueueFull = errors.New("retry queue full")

// Queue connects the advertisement handler (producer) with the dispatcher (consumer).
// New readings are appended at the back and never refused; readings that failed with
// a transient error go back to the front, bounded by MaxItems.
type Queue struct {
  mu sync.Mutex
  items deque.Deque[device.Reading]
  maxItems int
}

func NewQueue(maxItems int) *Queue {
  if maxItems <= 0 {
    panic("collector.NewQueue: maxItems must be positive")
  }

  return &Queue{
    maxItems: maxItems,
  }
}

func (q *Queue) MaxItems() int {
  return q.maxItems
}

func (q *Queue) PushBack(r device.Reading) {
  q.mu.Lock()
  defer q.mu.Unlock()

  q.items.PushBack(r)
}

// PushFront puts a reading back at the head of the queue so that it's retried before
// anything that arrived after it. Fails with ErrQueueFull if the queue already holds
// MaxItems readings; nothing already queued is evicted.
func (q *Queue) PushFront(r device.Reading) error {
  q.mu.Lock()
  defer q.mu.Unlock()

  if q.items.Len() >= q.maxItems {
    return ErrQueueFull
  }

  q.items.PushFront(r)

  return nil
}

func (q *Queue) PopFront() (r device.Reading, ok bool) {
  q.mu.Lock()
  defer q.mu.Unlock()

  if q.items.Len() == 0 {
    return r, false
  }

  return q.items.PopFront(), true
}

func (q *Queue) Len() int {
  q.mu.Lock()
  defer q.mu.Unlock()

  return q.items.Len()
}

// Drain empties the queue and returns its content in order.
func (q *Queue) Drain() []device.Reading {
  q.mu.Lock()
  defer q.mu.Unlock()

  out := make([]device.Reading, 0, q.items.Len())

  for q.items.Len() > 0 {
    out = append(out, q.items.PopFront())
  }

  return out
}
