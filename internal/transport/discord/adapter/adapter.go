package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "aprelay/internal/runtime/supervisor"
	kit "aprelay/internal/transport"
	logx "aprelay/pkg/logx"
)

type Config struct {
	Token string
	// GuildID scopes command registration to one guild; empty registers globally.
	GuildID string
}

// Adapter is the Discord implementation of transport.Adapter.
type Adapter struct {
	cfg Config
	log logx.Logger

	dg      *discordgo.Session
	out     atomic.Value // stores (chan<- kit.Interaction)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines. It is created on Start() and
	// cancelled on Stop().
	sup *rtsup.Supervisor

	// dropped counts interactions dropped because the consumer was slower
	// than the gateway. Logged periodically to avoid per-event spam.
	dropped uint64

	// startup holds guilds announced by Ready; their first GuildCreate is
	// a reconnect replay, not a join.
	guildMu sync.Mutex
	startup map[string]struct{}
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "discord.adapter")), dg: dg, startup: map[string]struct{}{}}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Interaction
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.guildMu.Lock()
		for _, g := range r.Guilds {
			a.startup[g.ID] = struct{}{}
		}
		a.guildMu.Unlock()
		a.log.Info("gateway ready", logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))
	})

	a.dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		a.guildMu.Lock()
		_, replay := a.startup[g.ID]
		delete(a.startup, g.ID)
		a.guildMu.Unlock()
		if replay {
			return
		}
		a.emit(kit.Interaction{Kind: kit.InteractionGuildJoin, GuildID: g.ID})
	})

	a.dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		// Unavailable guilds are outages, not removals.
		if g.Unavailable {
			return
		}
		a.emit(kit.Interaction{Kind: kit.InteractionGuildLeave, GuildID: g.ID})
	})

	a.dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		in, ok := toInteraction(i.Interaction)
		if !ok {
			return
		}
		in.Respond = &responder{s: s, i: i.Interaction}
		a.emit(in)
	})
}

func (a *Adapter) emit(in kit.Interaction) {
	out, _ := a.out.Load().(chan<- kit.Interaction)
	if out == nil {
		return
	}
	select {
	case out <- in:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Interaction) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.out.Store(out)
	if err := a.dg.Open(); err != nil {
		var nilOut chan<- kit.Interaction
		a.out.Store(nilOut)
		a.runMu.Unlock()
		return err
	}
	a.running = true
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("interactions.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
				a.log.Warn("incoming interactions dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Interaction
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	sup.Cancel()
	if err := a.dg.Close(); err != nil {
		a.log.Warn("gateway close failed", logx.Err(err))
	}
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("discord stop error", logx.Err(err))
	}
	return nil
}

// ResolveChannel looks the channel up in the gateway state first and falls
// back to REST.
func (a *Adapter) ResolveChannel(ctx context.Context, id string) (kit.Channel, error) {
	ch, err := a.dg.State.Channel(id)
	if err != nil {
		ch, err = a.dg.Channel(id, discordgo.WithContext(ctx))
		if err != nil {
			return kit.Channel{}, err
		}
	}
	return toChannel(ch), nil
}

func (a *Adapter) Send(ctx context.Context, msg kit.OutgoingMessage) (kit.MessageRef, error) {
	m, err := a.dg.ChannelMessageSendComplex(msg.ChannelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

// RegisterCommands replaces the application's command set.
func (a *Adapter) RegisterCommands(ctx context.Context, cmds []kit.CommandSpec) error {
	if a.dg.State == nil || a.dg.State.User == nil {
		return errors.New("discord session not ready")
	}
	created, err := a.dg.ApplicationCommandBulkOverwrite(a.dg.State.User.ID, a.cfg.GuildID, toApplicationCommands(cmds), discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	a.log.Info("application commands registered", logx.Int("count", len(created)), logx.String("guild", a.cfg.GuildID))
	return nil
}
