package monitor

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"aprelay/internal/transport"
	"aprelay/pkg/clock"
)

type batchHarness struct {
	clock *clock.Fake
	b     *batcher

	mu      sync.Mutex
	flushes [][]transport.OutgoingMessage
	active  bool
}

func newBatchHarness() *batchHarness {
	h := &batchHarness{clock: clock.NewFake(time.Unix(0, 0)), active: true}
	h.b = newBatcher(h.clock, DefaultBatchDelay, DefaultBatchSize, testChannel)
	h.b.deliver = func(msgs []transport.OutgoingMessage) {
		h.mu.Lock()
		h.flushes = append(h.flushes, msgs)
		h.mu.Unlock()
	}
	h.b.active = func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.active
	}
	return h
}

func (h *batchHarness) deliveries() [][]transport.OutgoingMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushes
}

func TestBatchNumbersInOrder(t *testing.T) {
	h := newBatchHarness()
	for _, s := range []string{"A", "B", "C"} {
		h.b.enqueue(CategoryItems, entry{text: s})
	}
	h.clock.Advance(DefaultBatchDelay)

	got := h.deliveries()
	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("expected one flush with one message, got %+v", got)
	}
	msg := got[0][0]
	if msg.ChannelID != testChannel || msg.Embeds[0].Title != "Items" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	fields := msg.Embeds[0].Fields
	for i, want := range []string{"A", "B", "C"} {
		if fields[i].Name != fmt.Sprintf("#%d", i+1) || fields[i].Value != want {
			t.Fatalf("field %d = %+v, want #%d=%s", i, fields[i], i+1, want)
		}
	}
}

func TestBatchSplitsAtLimitWithContinuousNumbering(t *testing.T) {
	h := newBatchHarness()
	for i := 1; i <= 30; i++ {
		h.b.enqueue(CategoryItems, entry{text: fmt.Sprintf("item %d", i)})
	}
	h.clock.Advance(DefaultBatchDelay)

	got := h.deliveries()
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected two messages in one flush, got %+v", got)
	}
	first, second := got[0][0].Embeds[0].Fields, got[0][1].Embeds[0].Fields
	if len(first) != 25 || len(second) != 5 {
		t.Fatalf("sizes = %d, %d", len(first), len(second))
	}
	if first[0].Name != "#1" || first[24].Name != "#25" || second[0].Name != "#26" || second[4].Name != "#30" {
		t.Fatalf("numbering: %s..%s, %s..%s", first[0].Name, first[24].Name, second[0].Name, second[4].Name)
	}
}

func TestBatchSplitsOnEmbedCharacterBudget(t *testing.T) {
	h := newBatchHarness()
	long := strings.Repeat("x", 1000)
	for i := 0; i < 12; i++ {
		h.b.enqueue(CategoryHints, entry{text: long})
	}
	h.clock.Advance(DefaultBatchDelay)

	got := h.deliveries()
	if len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("expected three messages, got %d", len(got[0]))
	}
	n := 0
	for _, msg := range got[0] {
		chars := len(msg.Embeds[0].Title)
		for _, f := range msg.Embeds[0].Fields {
			n++
			if f.Name != fmt.Sprintf("#%d", n) {
				t.Fatalf("field %d named %s", n, f.Name)
			}
			chars += len(f.Name) + len(f.Value)
		}
		if chars > 6000 {
			t.Fatalf("embed carries %d characters", chars)
		}
	}
	if n != 12 {
		t.Fatalf("fields delivered = %d", n)
	}
}

func TestBatchMentionsOncePerMessage(t *testing.T) {
	h := newBatchHarness()
	h.b.enqueue(CategoryItems, entry{text: "<@u1> a", mentions: []string{"u1"}})
	h.b.enqueue(CategoryItems, entry{text: "<@u2> b", mentions: []string{"u2"}})
	h.b.enqueue(CategoryItems, entry{text: "<@u1> c", mentions: []string{"u1"}})
	h.b.enqueue(CategoryItems, entry{text: "<@u1> d", mentions: []string{"u1"}})
	h.clock.Advance(DefaultBatchDelay)

	msg := h.deliveries()[0][0]
	if msg.Content != "<@u1> <@u2>" {
		t.Fatalf("content = %q", msg.Content)
	}
	if strings.Count(msg.Content, "<@u1>") != 1 || len(msg.Mentions) != 2 {
		t.Fatalf("mentions = %v", msg.Mentions)
	}
}

func TestBatchDebounceCoalesces(t *testing.T) {
	h := newBatchHarness()
	h.b.enqueue(CategoryItems, entry{text: "first"})
	h.clock.Advance(100 * time.Millisecond)
	h.b.enqueue(CategoryItems, entry{text: "second"})
	if n := h.clock.Pending(); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
	h.clock.Advance(50 * time.Millisecond)

	got := h.deliveries()
	if len(got) != 1 {
		t.Fatalf("flushes = %d, want 1", len(got))
	}
	if fields := got[0][0].Embeds[0].Fields; len(fields) != 2 {
		t.Fatalf("fields = %+v", fields)
	}
	h.clock.Advance(time.Second)
	if len(h.deliveries()) != 1 {
		t.Fatal("unexpected second flush")
	}
}

func TestBatchHintsBeforeItems(t *testing.T) {
	h := newBatchHarness()
	h.b.enqueue(CategoryItems, entry{text: "item"})
	h.b.enqueue(CategoryHints, entry{text: "hint"})
	h.clock.Advance(DefaultBatchDelay)

	msgs := h.deliveries()[0]
	if len(msgs) != 2 || msgs[0].Embeds[0].Title != "Hints" || msgs[1].Embeds[0].Title != "Items" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if msgs[0].Embeds[0].Fields[0].Name != "#1" || msgs[1].Embeds[0].Fields[0].Name != "#1" {
		t.Fatal("numbering should restart per category")
	}
}

func TestBatchFlushDroppedWhenInactive(t *testing.T) {
	h := newBatchHarness()
	h.b.enqueue(CategoryItems, entry{text: "late"})
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
	h.clock.Advance(DefaultBatchDelay)
	if len(h.deliveries()) != 0 {
		t.Fatal("flush of inactive monitor was delivered")
	}
}

func TestBatchStopCancelsTimer(t *testing.T) {
	h := newBatchHarness()
	h.b.enqueue(CategoryItems, entry{text: "x"})
	h.b.stop()
	if n := h.clock.Pending(); n != 0 {
		t.Fatalf("pending = %d after stop", n)
	}
	h.b.enqueue(CategoryItems, entry{text: "y"})
	h.clock.Advance(time.Second)
	if len(h.deliveries()) != 0 {
		t.Fatal("stopped batcher delivered")
	}
}
