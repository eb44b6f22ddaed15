// Package framebus fans rendered texture frames out to in-process consumers.
//
// The relay's frame pump publishes at the render cadence; consumers attach
// either a channel tap (frames are skipped when the tap is full) or a latest
// cell (each publish overwrites the previous frame). Neither mode ever blocks
// the publisher, so a slow websocket client or a stalled transport cannot
// back-pressure the render loop.
package framebus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusClosed      = errors.New("framebus: bus is closed")
	ErrTapExists      = errors.New("framebus: tap already attached")
	ErrTapNotFound    = errors.New("framebus: tap not found")
	ErrNilChannel     = errors.New("framebus: nil channel provided")
	ErrCellClosed     = errors.New("framebus: latest cell is closed")
)

// TextureFrame is one rendered frame as it leaves the relay.
type TextureFrame struct {
	// Data is tightly packed RGBA, Width*Height*4 bytes.
	Data   []byte
	Width  int
	Height int

	// Flipped reports that rows are stored bottom-up.
	Flipped bool

	// Sequence increases by one per published frame within a session.
	Sequence uint64

	// PublishedAt is the wall-clock publish time in nanoseconds.
	PublishedAt int64
}

// TapStats counts delivery outcomes for one tap.
type TapStats struct {
	Delivered uint64
	Skipped   uint64
}

// LatestCell hands out the most recent published frame.
type LatestCell interface {
	// Next blocks until a frame newer than the last one returned arrives,
	// or the cell is closed. ok is false after close.
	Next() (TextureFrame, bool)

	// Peek returns the current frame without blocking.
	Peek() (TextureFrame, bool)

	Close()
}

// Bus distributes texture frames to attached consumers.
type Bus struct {
	mu        sync.RWMutex
	taps      map[string]*tap
	published uint64
	closed    bool
}

type tap struct {
	id    string
	stats TapStats

	// Exactly one of ch and cell is set.
	ch   chan<- TextureFrame
	cell *latestCell
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{taps: make(map[string]*tap)}
}

// Attach registers a channel tap. Publishes that find the channel full are
// skipped for this tap.
func (b *Bus) Attach(id string, ch chan<- TextureFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if ch == nil {
		return ErrNilChannel
	}
	if _, exists := b.taps[id]; exists {
		return ErrTapExists
	}

	b.taps[id] = &tap{id: id, ch: ch}
	return nil
}

// AttachLatest registers a latest-frame cell. Each publish overwrites the
// cell, so the consumer always sees the newest frame regardless of its pace.
func (b *Bus) AttachLatest(id string) (LatestCell, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.taps[id]; exists {
		return nil, ErrTapExists
	}

	t := &tap{id: id, cell: newLatestCell()}
	b.taps[id] = t
	return t.cell, nil
}

// Publish delivers frame to every tap without blocking.
func (b *Bus) Publish(frame TextureFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	if frame.PublishedAt == 0 {
		frame.PublishedAt = time.Now().UnixNano()
	}
	atomic.AddUint64(&b.published, 1)

	for _, t := range b.taps {
		if t.cell != nil {
			_ = t.cell.set(frame)
			atomic.AddUint64(&t.stats.Delivered, 1)
			continue
		}
		select {
		case t.ch <- frame:
			atomic.AddUint64(&t.stats.Delivered, 1)
		default:
			atomic.AddUint64(&t.stats.Skipped, 1)
		}
	}
}

// Detach removes a tap, closing its latest cell if it has one.
func (b *Bus) Detach(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, exists := b.taps[id]
	if !exists {
		return ErrTapNotFound
	}
	if t.cell != nil {
		t.cell.Close()
	}
	delete(b.taps, id)
	return nil
}

// Stats returns a snapshot of one tap's delivery counters.
func (b *Bus) Stats(id string) (TapStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, exists := b.taps[id]
	if !exists {
		return TapStats{}, ErrTapNotFound
	}
	return TapStats{
		Delivered: atomic.LoadUint64(&t.stats.Delivered),
		Skipped:   atomic.LoadUint64(&t.stats.Skipped),
	}, nil
}

// Published returns the total number of frames published.
func (b *Bus) Published() uint64 {
	return atomic.LoadUint64(&b.published)
}

// Close shuts the bus down. Subsequent publishes are ignored and every
// latest cell unblocks its waiters.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.taps {
		if t.cell != nil {
			t.cell.Close()
		}
	}
	b.taps = nil
}

// latestCell holds the most recent frame behind a condition variable.
type latestCell struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *TextureFrame
	seq    uint64
	closed bool
}

func newLatestCell() *latestCell {
	c := &latestCell{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *latestCell) set(frame TextureFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCellClosed
	}
	c.frame = &frame
	c.seq++
	c.cond.Broadcast()
	return nil
}

func (c *latestCell) Next() (TextureFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.seq
	for c.seq == start && !c.closed {
		c.cond.Wait()
	}
	if c.closed || c.frame == nil {
		return TextureFrame{}, false
	}
	return *c.frame, true
}

func (c *latestCell) Peek() (TextureFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame == nil {
		return TextureFrame{}, false
	}
	return *c.frame, true
}

func (c *latestCell) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cond.Broadcast()
}
