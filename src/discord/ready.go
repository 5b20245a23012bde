package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/chat-agent/src/agent"
)

// onReady runs inside Session.Open with the session locked, so it only
// records the guild set and leaves the wait to a goroutine.
func (g *Gateway) onReady(ctx context.Context, h agent.EventHandler, r *discordgo.Ready) {
	defer recoverEvent(ctx, h, "ready")

	g.mu.Lock()
	g.readyGen++
	gen := g.readyGen
	g.known = make(map[string]struct{}, len(r.Guilds))
	g.pending = make(map[string]struct{}, len(r.Guilds))
	for _, guild := range r.Guilds {
		g.known[guild.ID] = struct{}{}
		g.pending[guild.ID] = struct{}{}
	}
	g.mu.Unlock()

	go g.awaitReady(ctx, h, gen)
}

// awaitReady delivers OnReady once the Ready guilds are loaded and the first
// heartbeat was acknowledged, or once the wait bounds run out. A newer Ready
// supersedes it.
func (g *Gateway) awaitReady(ctx context.Context, h agent.EventHandler, gen int) {
	defer recoverEvent(ctx, h, "ready")

	if !g.waitFor(ctx, g.guildWait, g.guildsLoaded) {
		return
	}
	if !g.waitFor(ctx, g.ackWait, func() bool {
		_, ok := g.latency()
		return ok
	}) {
		return
	}

	g.mu.Lock()
	current := gen == g.readyGen
	g.mu.Unlock()
	if current {
		h.OnReady(ctx)
	}
}

// waitFor polls cond until it holds or limit passes. It returns false only
// when ctx ends first.
func (g *Gateway) waitFor(ctx context.Context, limit time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(limit)
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for !cond() && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (g *Gateway) guildsLoaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending) == 0
}

func (g *Gateway) onGuildCreate(ctx context.Context, h agent.EventHandler, gc *discordgo.GuildCreate) {
	defer recoverEvent(ctx, h, "guild_create")
	if gc.Guild == nil || gc.Unavailable || !g.arrive(gc.ID) {
		return
	}
	ev := buildJoinEvent(gc.Guild, g.canSend)
	g.spawn(func() {
		defer recoverEvent(ctx, h, "guild_create")
		h.OnGuildJoin(ctx, ev)
	})
}

// arrive records a GuildCreate and reports whether it is a new membership
// rather than a Ready guild loading or a guild returning from an outage.
func (g *Gateway) arrive(guildID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, guildID)
	if _, ok := g.known[guildID]; ok {
		return false
	}
	g.known[guildID] = struct{}{}
	return true
}

// onGuildDelete forgets a guild the agent left or was removed from. Outages
// arrive as deletes marked unavailable and keep the membership.
func (g *Gateway) onGuildDelete(gd *discordgo.GuildDelete) {
	if gd.Guild == nil || gd.Unavailable {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.known, gd.ID)
	delete(g.pending, gd.ID)
}
