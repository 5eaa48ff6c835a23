package monitor

import (
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"aprelay/internal/transport"
	"aprelay/pkg/clock"
)

type Category int

const (
	CategoryHints Category = iota
	CategoryItems
)

func (c Category) Title() string {
	if c == CategoryHints {
		return "Hints"
	}
	return "Items"
}

const (
	DefaultBatchDelay = 150 * time.Millisecond
	// Discord allows at most 25 embed fields per message.
	DefaultBatchSize = 25

	// Discord rejects embeds whose title and fields exceed 6000 characters
	// and clips field values at 1024.
	embedCharLimit  = 6000
	fieldValueLimit = 1024
)

type entry struct {
	text     string
	mentions []string
}

// batcher coalesces bursts into numbered digests. The flush timer is armed
// only by an enqueue that finds both categories empty.
type batcher struct {
	clock   clock.Clock
	delay   time.Duration
	size    int
	channel string

	// deliver receives the digests of one flush, hints before items.
	deliver func(msgs []transport.OutgoingMessage)
	// active gates delivery; a flush of a stopped monitor is dropped.
	active func() bool

	mu      sync.Mutex
	queues  [2][]entry
	timer   *clock.Timer
	stopped bool
}

func newBatcher(clk clock.Clock, delay time.Duration, size int, channel string) *batcher {
	if delay <= 0 {
		delay = DefaultBatchDelay
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &batcher{clock: clk, delay: delay, size: size, channel: channel}
}

func (b *batcher) enqueue(cat Category, e entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if len(b.queues[CategoryHints]) == 0 && len(b.queues[CategoryItems]) == 0 {
		b.timer = b.clock.AfterFunc(b.delay, b.flush)
	}
	b.queues[cat] = append(b.queues[cat], e)
}

func (b *batcher) flush() {
	b.mu.Lock()
	queues := b.queues
	b.queues = [2][]entry{}
	b.timer = nil
	b.mu.Unlock()

	if b.active != nil && !b.active() {
		return
	}
	var msgs []transport.OutgoingMessage
	for _, cat := range []Category{CategoryHints, CategoryItems} {
		msgs = append(msgs, b.build(cat, queues[cat])...)
	}
	if len(msgs) > 0 && b.deliver != nil {
		b.deliver(msgs)
	}
}

// build numbers entries from #1 for this flush, continuing across chunks.
func (b *batcher) build(cat Category, entries []entry) []transport.OutgoingMessage {
	var out []transport.OutgoingMessage
	n := 0
	for _, chunk := range chunkEntries(entries, b.size, embedCharLimit-utf8.RuneCountInString(cat.Title())) {
		var mentions []string
		fields := make([]transport.EmbedField, 0, len(chunk))
		for _, e := range chunk {
			n++
			fields = append(fields, transport.EmbedField{Name: fieldName(n), Value: e.text})
			mentions = append(mentions, e.mentions...)
		}
		mentions = lo.Uniq(mentions)
		out = append(out, transport.OutgoingMessage{
			ChannelID: b.channel,
			Content:   mentionLine(mentions),
			Mentions:  mentions,
			Embeds:    []transport.Embed{{Title: cat.Title(), Fields: fields}},
		})
	}
	return out
}

func fieldName(n int) string { return "#" + strconv.Itoa(n) }

// chunkEntries splits entries into groups of at most size fields whose
// rendered characters fit budget.
func chunkEntries(entries []entry, size, budget int) [][]entry {
	var (
		out  [][]entry
		cur  []entry
		used int
	)
	for i, e := range entries {
		cost := utf8.RuneCountInString(fieldName(i+1)) + min(utf8.RuneCountInString(e.text), fieldValueLimit)
		if len(cur) > 0 && (len(cur) == size || used+cost > budget) {
			out = append(out, cur)
			cur, used = nil, 0
		}
		cur = append(cur, e)
		used += cost
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// stop cancels a pending flush and drops queued entries.
func (b *batcher) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.timer.Stop()
	b.timer = nil
	b.queues = [2][]entry{}
}

func mentionLine(ids []string) string {
	return strings.Join(lo.Map(ids, func(id string, _ int) string { return mentionTag(id) }), " ")
}
