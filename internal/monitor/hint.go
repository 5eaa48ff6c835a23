package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"aprelay/internal/archipelago"
	"aprelay/internal/storage"
	"aprelay/pkg/clock"
)

var ErrHintTimeout = errors.New("no hint response from the server")

const (
	DefaultHintFirstTimeout = 10 * time.Second
	DefaultHintQuietPeriod  = 2 * time.Second

	hintChunkLimit = 1900
)

type HintOptions struct {
	Clock clock.Clock
	// First bounds the wait for the first response.
	First time.Duration
	// Quiet ends collection once no response arrived for this long.
	Quiet time.Duration
}

// CollectHints opens a temporary session, requests hints for item and
// gathers responses until the session goes quiet.
func CollectHints(ctx context.Context, d Dialer, p DialParams, item string, opts HintOptions) ([]string, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.First <= 0 {
		opts.First = DefaultHintFirstTimeout
	}
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultHintQuietPeriod
	}

	sess, err := d.Dial(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer sess.Close()

	if err := sess.Say(ctx, "!hint "+item); err != nil {
		return nil, err
	}

	f := Formatter{Names: sess.Names()}
	var hints []string
	deadline := opts.Clock.After(opts.First)
	for {
		select {
		case <-ctx.Done():
			return hints, ctx.Err()
		case <-deadline:
			if len(hints) == 0 {
				return nil, ErrHintTimeout
			}
			return hints, nil
		case ev, ok := <-sess.Events():
			if !ok {
				if len(hints) == 0 {
					return nil, ErrHintTimeout
				}
				return hints, nil
			}
			segs, ok := hintSegments(ev, sess.Names())
			if !ok {
				continue
			}
			hints = append(hints, f.Render(segs, Always(storage.MentionHints)).Text)
			deadline = opts.Clock.After(opts.Quiet)
		}
	}
}

func hintSegments(ev archipelago.Event, names *archipelago.Names) ([]archipelago.Segment, bool) {
	switch e := ev.(type) {
	case archipelago.ItemHinted:
		return e.Segments, true
	case archipelago.CommandResult:
		return e.Segments, true
	case archipelago.ServerChat:
		return e.Segments, true
	case archipelago.Message:
		text := strings.ToLower(archipelago.PlainText(e.Segments, names))
		if strings.Contains(text, "[hint]") && !strings.Contains(text, "!hint") {
			return e.Segments, true
		}
	}
	return nil, false
}

// ChunkHints joins hints into messages under the chat length limit. The
// first message carries a count header.
func ChunkHints(hints []string) []string {
	var (
		out []string
		b   strings.Builder
	)
	b.WriteString("**Hint results (" + strconv.Itoa(len(hints)) + "):**\n")
	for _, h := range hints {
		h = clipHint(h)
		if b.Len() > 0 && b.Len()+len(h)+1 > hintChunkLimit {
			out = append(out, b.String())
			b.Reset()
		}
		b.WriteString(h)
		b.WriteByte('\n')
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// clipHint shortens h so the line and its newline fit in one chunk, cutting
// on a rune boundary.
func clipHint(h string) string {
	if len(h) < hintChunkLimit {
		return h
	}
	cut := hintChunkLimit - 4
	for cut > 0 && !utf8.RuneStart(h[cut]) {
		cut--
	}
	return h[:cut] + "..."
}
