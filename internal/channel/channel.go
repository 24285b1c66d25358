// Package channel implements per-channel-MCP polling, idempotent
// at-most-once message dedup, echo/staleness filtering, and ordered
// per-chat dispatch to the agent manager.
//
// The dedup cache is modeled on cklxx-elephant.ai's Lark gateway
// (github.com/hashicorp/golang-lru/v2, keyed by message id with a bound on
// cache size), adapted here from a push-based webhook gateway to a
// pull-based poller.
package channel

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fleetward/orchestrator/internal/config"
	"github.com/fleetward/orchestrator/internal/descriptor"
	"github.com/fleetward/orchestrator/internal/router"
)

// Message is the inbound channel message shape handed to the dispatcher.
type Message struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chatId"`
	SenderID string    `json:"senderId"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
	Channel  string    `json:"channel"`
	AgentID  string    `json:"agentId"`
}

// Dispatcher receives surviving messages in per-chat id order.
type Dispatcher interface {
	OnMessage(ctx context.Context, msg Message) error
}

// BindingResolver resolves an agent for (channel, chatId).
type BindingResolver interface {
	ResolveBinding(channel, chatID string) (string, bool)
}

// rawMessage is the wire shape returned by a channel MCP's get_messages.
type rawMessage struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
	Date     string `json:"date"`
}

type getMessagesResponse struct {
	Messages []rawMessage `json:"messages"`
}

type listChatsResponse struct {
	Chats []struct {
		ChatID string `json:"chatId"`
	} `json:"chats"`
}

type getMeResponse struct {
	UserID string `json:"userId"`
}

// Poller drives one role=channel MCP.
type Poller struct {
	desc   *descriptor.Descriptor
	router *router.Router
	bind   BindingResolver
	dest   Dispatcher
	cfg    config.ChannelConfig
	logger *log.Logger

	dedup *lru.Cache[string, time.Time]

	mu           sync.Mutex
	monitoredChats []string
	botUserID      string
	lastChatRefresh time.Time
	inFlight       int32 // poller's single in-flight guard
}

// NewPoller constructs a Poller for a role=channel descriptor.
func NewPoller(desc *descriptor.Descriptor, r *router.Router, bind BindingResolver, dest Dispatcher, cfg config.ChannelConfig, logger *log.Logger) (*Poller, error) {
	if logger == nil {
		logger = log.Default()
	}
	cache, err := lru.New[string, time.Time](cfg.LRUCapSize)
	if err != nil {
		return nil, err
	}
	return &Poller{desc: desc, router: r, bind: bind, dest: dest, cfg: cfg, logger: logger, dedup: cache}, nil
}

// interval resolves the configured poll interval, floored at MinIntervalMs.
func (p *Poller) interval() time.Duration {
	ms := p.desc.Channel.ChatRefreshIntervalMs
	if ms <= 0 {
		ms = p.cfg.DefaultIntervalMs
	}
	if ms < p.cfg.MinIntervalMs {
		ms = p.cfg.MinIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// maxAge resolves the staleness cutoff.
func (p *Poller) maxAge() time.Duration {
	ms := p.desc.Channel.MaxMessageAgeMs
	if ms <= 0 {
		ms = p.cfg.DefaultMaxMessageAgeMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Run blocks, polling on a timer until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.inFlight, 0, 1) {
		return // previous cycle still running
	}
	defer atomic.StoreInt32(&p.inFlight, 0)

	if err := p.refreshIdentityAndChats(ctx); err != nil {
		p.logger.Printf("channel %s: refresh failed: %v", p.desc.Name, err)
		return
	}

	byChat := map[string][]Message{}
	for _, chatID := range p.snapshotChats() {
		msgs, err := p.getMessages(ctx, chatID)
		if err != nil {
			p.logger.Printf("channel %s: get_messages(%s) failed: %v", p.desc.Name, chatID, err)
			continue
		}
		for _, m := range msgs {
			if p.shouldSkip(m) {
				continue
			}
			byChat[m.ChatID] = append(byChat[m.ChatID], m)
		}
	}

	for chatID, msgs := range byChat {
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		limit := p.cfg.MaxMessagesPerCycle
		if limit <= 0 || limit > len(msgs) {
			limit = len(msgs)
		}
		for _, m := range msgs[:limit] {
			// Mark processed before dispatch so a dispatch crash does not
			// cause a re-send.
			p.dedup.Add(m.ID, time.Now())
			m.AgentID, _ = p.bind.ResolveBinding(m.Channel, chatID)
			if err := p.dest.OnMessage(ctx, m); err != nil {
				p.logger.Printf("channel %s: dispatch %s failed: %v", p.desc.Name, m.ID, err)
			}
		}
	}
}

func (p *Poller) shouldSkip(m Message) bool {
	if _, seen := p.dedup.Get(m.ID); seen {
		return true
	}
	if p.botUserID != "" && m.SenderID == p.botUserID {
		return true
	}
	if time.Since(m.Date) > p.maxAge() {
		return true
	}
	for _, pattern := range p.desc.Channel.BotPatterns {
		if pattern != "" && len(m.Text) >= len(pattern) && m.Text[:len(pattern)] == pattern {
			return true
		}
	}
	return false
}

func (p *Poller) snapshotChats() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.monitoredChats))
	copy(out, p.monitoredChats)
	return out
}

// refreshIdentityAndChats refreshes the bot identity (once) and the
// monitored chat list at start and every ChatRefreshMs.
func (p *Poller) refreshIdentityAndChats(ctx context.Context) error {
	p.mu.Lock()
	needsRefresh := p.lastChatRefresh.IsZero() || time.Since(p.lastChatRefresh) >= time.Duration(p.cfg.ChatRefreshMs)*time.Millisecond
	p.mu.Unlock()
	if !needsRefresh {
		return nil
	}

	if p.botUserID == "" {
		res := p.router.CallDirect(ctx, p.desc.Name, "get_me", nil)
		if res.OK {
			var me getMeResponse
			if err := json.Unmarshal([]byte(res.Content), &me); err == nil {
				p.botUserID = me.UserID
			}
		}
	}

	res := p.router.CallDirect(ctx, p.desc.Name, "list_chats", nil)
	if !res.OK {
		return res.Err
	}
	var chats listChatsResponse
	if err := json.Unmarshal([]byte(res.Content), &chats); err != nil {
		return err
	}
	ids := make([]string, 0, len(chats.Chats))
	for _, c := range chats.Chats {
		ids = append(ids, c.ChatID)
	}

	p.mu.Lock()
	p.monitoredChats = ids
	p.lastChatRefresh = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Poller) getMessages(ctx context.Context, chatID string) ([]Message, error) {
	res := p.router.CallDirect(ctx, p.desc.Name, "get_messages", map[string]interface{}{"chatId": chatID})
	if !res.OK {
		return nil, res.Err
	}
	var parsed getMessagesResponse
	if err := json.Unmarshal([]byte(res.Content), &parsed); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		date, _ := time.Parse(time.RFC3339, m.Date)
		out = append(out, Message{
			ID:       m.ID,
			ChatID:   m.ChatID,
			SenderID: m.SenderID,
			Text:     m.Text,
			Date:     date,
			Channel:  p.desc.Name,
		})
	}
	return out, nil
}
