package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	Publish(b, MonitorStarted, "ap.gg:38281:Alice")

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Type != MonitorStarted || ev.Data != "ap.gg:38281:Alice" || ev.Time.IsZero() {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})

	if ev := <-ch; ev.Type != "a" {
		t.Fatalf("got %q want a", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected drop, got %q", ev.Type)
	default:
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	b.Publish(Event{Type: "after"})
	Publish(nil, "ignored", nil)
}
