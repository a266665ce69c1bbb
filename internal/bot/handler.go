// Package bot is the Discord front-end: slash commands for role and server
// configuration plus the guild lifecycle hooks.
package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"tokengate/internal/reconcile"
	"tokengate/internal/store"
)

// Handler holds the bot session and its collaborators.
type Handler struct {
	session *discordgo.Session
	store   *store.Store
	engine  *reconcile.Engine
	log     *zap.SugaredLogger
}

// New registers the event handlers on an existing session. The session is
// shared with the platform adapter and is not opened until Start.
func New(session *discordgo.Session, st *store.Store, engine *reconcile.Engine, log *zap.SugaredLogger) *Handler {
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	h := &Handler{
		session: session,
		store:   st,
		engine:  engine,
		log:     log,
	}

	session.AddHandler(h.onReady)
	session.AddHandler(h.onGuildCreate)
	session.AddHandler(h.onInteraction)

	return h
}

// Start opens the gateway connection.
func (h *Handler) Start() error {
	return h.session.Open()
}

func (h *Handler) Stop() {
	_ = h.session.Close()
}

func (h *Handler) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	h.log.Infow("logged in", "username", s.State.User.Username, "id", s.State.User.ID)

	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", commands); err != nil {
		h.log.Errorw("failed to register commands", "error", err)
	}
}

// onGuildCreate provisions the server config on first contact and runs a
// server pass so existing bindings pick up configured roles.
func (h *Handler) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	ctx := context.Background()

	if _, err := h.store.EnsureServerConfig(ctx, g.ID); err != nil {
		h.log.Errorw("failed to create server config", "serverId", g.ID, "error", err)
		return
	}
	h.log.Infow("server initialized", "serverId", g.ID, "serverName", g.Name)

	if err := h.engine.ReconcileServer(ctx, g.ID); err != nil {
		h.log.Errorw("failed to reconcile new server", "serverId", g.ID, "error", err)
	}
}
