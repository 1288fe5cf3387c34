// Package gateway is the persistent bidirectional channel. It upgrades HTTP
// connections to websockets, associates each connection with a (roomId,
// playerId) once the client sends room:join, routes every other inbound
// command to internal/gamesvc or internal/orchestrator, and fans
// server-side notifications back out to the right connections.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"promptguessr/internal/gameerr"
	"promptguessr/internal/gamesvc"
	"promptguessr/internal/orchestrator"
)

// Config holds the gateway's tunables, sourced from internal/config.
type Config struct {
	ReadLimitBytes int64
	WriteTimeout   time.Duration
	RateLimit      rate.Limit
	RateBurst      int
}

// Gateway owns the Hub and is the *orchestrator.Notifier the orchestrator
// calls back into for fan-out.
type Gateway struct {
	cfg     Config
	hub     *Hub
	manager *gamesvc.Manager
	orch    *orchestrator.Orchestrator
	log     *slog.Logger
	timers  *phaseTimers

	upgrader websocket.Upgrader
}

// New builds a Gateway. orch may be set after construction via SetOrchestrator
// if the two need to be wired together (the orchestrator also needs a
// Notifier, which is this Gateway). Callers typically build the Gateway
// first, then the Orchestrator with gw as its Notifier.
func New(cfg Config, manager *gamesvc.Manager, log *slog.Logger, allowedOrigins func(*http.Request) bool) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		cfg:     cfg,
		hub:     NewHub(cfg.WriteTimeout, log),
		manager: manager,
		log:     log,
		timers:  newPhaseTimers(),
		upgrader: websocket.Upgrader{
			CheckOrigin: allowedOrigins,
		},
	}
}

// SetOrchestrator wires the orchestrator in after construction, breaking the
// construction cycle between the gateway and its orchestrator.
func (g *Gateway) SetOrchestrator(orch *orchestrator.Orchestrator) {
	g.orch = orch
}

// ServeWS upgrades the request to a websocket and runs the connection's read
// loop until it disconnects.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("gateway: upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(g.cfg.ReadLimitBytes)
	c := newConn(ws, g.cfg.RateLimit, g.cfg.RateBurst)
	g.log.Info("gateway: connection opened", "remote", r.RemoteAddr)
	g.readLoop(c)
}

func (g *Gateway) readLoop(c *Conn) {
	defer g.onDisconnect(c)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			g.hub.sendError(c, "RATE_LIMITED", "too many messages, slow down")
			continue
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			g.hub.sendError(c, "BAD_REQUEST", "malformed message")
			continue
		}
		g.dispatch(c, env)
	}
}

func (g *Gateway) onDisconnect(c *Conn) {
	c.close()
	roomID, playerID := c.identity()
	if roomID == "" || playerID == "" {
		return
	}
	g.hub.remove(roomID, c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	room, err := g.manager.UpdateConnection(ctx, roomID, playerID, false)
	if err != nil {
		g.log.Warn("gateway: failed to mark player disconnected", "room_id", roomID, "player_id", playerID, "error", err)
		return
	}
	g.hub.Broadcast(roomID, EventPlayerLeft, playerLeftPayload{PlayerID: playerID, Reason: "disconnect"})
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
}

func (g *Gateway) dispatch(c *Conn, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch env.Type {
	case MsgRoomJoin:
		g.handleRoomJoin(ctx, c, env)
	case MsgPlayerReady:
		g.handlePlayerReady(ctx, c, env)
	case MsgGameStart:
		g.handleGameStart(ctx, c)
	case MsgSubmitPrompt:
		g.handleSubmitPrompt(ctx, c, env)
	case MsgResubmitPrompt:
		g.handleResubmitPrompt(ctx, c, env)
	case MsgSelectImage:
		g.handleSelectImage(ctx, c, env)
	case MsgSubmitGuess:
		g.handleSubmitGuess(ctx, c, env)
	case MsgNavigateResult:
		g.handleNavigateResult(ctx, c, env)
	case MsgCompleteReveal:
		g.handleCompleteReveal(ctx, c)
	case MsgNextRound:
		g.handleNextRound(ctx, c)
	default:
		g.hub.sendError(c, "UNKNOWN_MESSAGE", "unrecognized message type")
	}
}

// requireIdentity returns the connection's (roomId, playerId), sending an
// error and reporting false if it has not yet joined a room.
func (g *Gateway) requireIdentity(c *Conn) (roomID, playerID string, ok bool) {
	roomID, playerID = c.identity()
	if roomID == "" || playerID == "" {
		g.hub.sendError(c, "PLAYER_NOT_IN_ROOM", "send room:join before any other command")
		return "", "", false
	}
	return roomID, playerID, true
}

// requireHost additionally checks the caller is the room's host, ahead of
// internal/gamesvc's own re-validation.
func (g *Gateway) requireHost(ctx context.Context, c *Conn, roomID, playerID string) bool {
	room, err := g.manager.GetRoom(ctx, roomID)
	if err != nil {
		g.sendGameErr(c, "room not found", err)
		return false
	}
	if room.HostID != playerID {
		g.hub.sendError(c, "NOT_HOST", "only the host can do that")
		return false
	}
	return true
}

func (g *Gateway) sendGameErr(c *Conn, fallback string, err error) {
	var ge *gameerr.Error
	if errors.As(err, &ge) {
		g.hub.sendError(c, ge.WireCode(), ge.Error())
		return
	}
	g.hub.sendError(c, "INTERNAL", fallback)
}

func (g *Gateway) handleRoomJoin(ctx context.Context, c *Conn, env Envelope) {
	var payload roomJoinPayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed room:join payload")
		return
	}
	room, err := g.manager.GetRoom(ctx, payload.RoomID)
	if err != nil {
		g.sendGameErr(c, "room not found", err)
		return
	}
	player, ok := room.Players.Get(payload.PlayerID)
	if !ok {
		g.hub.sendError(c, "PLAYER_NOT_IN_ROOM", "player is not seated in this room")
		return
	}
	c.attach(payload.RoomID, payload.PlayerID)
	g.hub.add(payload.RoomID, c)
	room, err = g.manager.UpdateConnection(ctx, payload.RoomID, payload.PlayerID, true)
	if err != nil {
		g.sendGameErr(c, "failed to mark connected", err)
		return
	}
	g.hub.Unicast(payload.RoomID, payload.PlayerID, EventRoomUpdate, roomUpdatePayload{Room: room})
	g.hub.Broadcast(payload.RoomID, EventPlayerJoined, playerJoinedPayload{Player: player})
}

func (g *Gateway) handlePlayerReady(ctx context.Context, c *Conn, env Envelope) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	var payload playerReadyPayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed player:ready payload")
		return
	}
	room, err := g.manager.SetReady(ctx, roomID, playerID, payload.IsReady)
	if err != nil {
		g.sendGameErr(c, "failed to set ready", err)
		return
	}
	g.hub.Broadcast(roomID, EventPlayerReadyChanged, playerReadyChangedPayload{PlayerID: playerID, IsReady: payload.IsReady})
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
}

func (g *Gateway) handleGameStart(ctx context.Context, c *Conn) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	if !g.requireHost(ctx, c, roomID, playerID) {
		return
	}
	room, err := g.manager.StartGame(ctx, roomID)
	if err != nil {
		g.sendGameErr(c, "failed to start game", err)
		return
	}
	g.hub.Broadcast(roomID, EventGameStarted, gameStartedPayload{Game: room.Game})
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	g.reschedulePhaseTimer(room)
}

func (g *Gateway) handleSubmitPrompt(ctx context.Context, c *Conn, env Envelope) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	var payload submitPromptPayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed game:submit_prompt payload")
		return
	}
	room, allSubmitted, err := g.manager.SubmitPrompt(ctx, roomID, playerID, payload.Text)
	if err != nil {
		g.sendGameErr(c, "failed to submit prompt", err)
		return
	}
	g.hub.Broadcast(roomID, EventPromptSubmitted, promptSubmittedPayload{PlayerID: playerID})
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if allSubmitted {
		g.reschedulePhaseTimer(room)
		if g.orch != nil {
			go g.orch.RunGeneration(context.Background(), roomID)
		}
	}
}

func (g *Gateway) handleResubmitPrompt(ctx context.Context, c *Conn, env Envelope) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	var payload submitPromptPayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed game:resubmit_prompt payload")
		return
	}
	if g.orch == nil {
		g.hub.sendError(c, "INTERNAL", "generation is not available")
		return
	}
	room, shouldTransition, err := g.orch.RunResubmit(ctx, roomID, playerID, payload.Text)
	if room == nil {
		g.sendGameErr(c, "failed to resubmit prompt", err)
		return
	}
	if err != nil && gameerr.Is(err, gameerr.KindContentPolicy) {
		g.hub.Unicast(roomID, playerID, EventPromptRejected, promptRejectedPayload{PlayerID: playerID, Reason: "content_policy"})
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if shouldTransition {
		g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.CurrentRoundPtr().Status)})
		g.reschedulePhaseTimer(room)
	}
}

func (g *Gateway) handleSelectImage(ctx context.Context, c *Conn, env Envelope) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	var payload selectImagePayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed game:select_image payload")
		return
	}
	room, allSelected, err := g.manager.SelectImage(ctx, roomID, playerID, payload.ImageID)
	if err != nil {
		g.sendGameErr(c, "failed to select image", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if allSelected {
		g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.CurrentRoundPtr().Status)})
		g.reschedulePhaseTimer(room)
	}
}

func (g *Gateway) handleSubmitGuess(ctx context.Context, c *Conn, env Envelope) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	var payload submitGuessPayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed game:submit_guess payload")
		return
	}
	room, allGuessed, transitionedToScoring, err := g.manager.SubmitGuess(ctx, roomID, playerID, payload.ImageID, payload.GuessText)
	if err != nil {
		g.sendGameErr(c, "failed to submit guess", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if allGuessed {
		g.reschedulePhaseTimer(room)
		if !transitionedToScoring {
			// The reveal index advanced to the next image without leaving
			// reveal_guess; clients need this to re-render on it.
			g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.CurrentRoundPtr().Status)})
		}
	}
	if transitionedToScoring && g.orch != nil {
		go g.orch.RunScoring(context.Background(), roomID)
	}
}

func (g *Gateway) handleNavigateResult(ctx context.Context, c *Conn, env Envelope) {
	roomID, _, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	var payload navigateResultPayload
	if err := decodePayload(env, &payload); err != nil {
		g.hub.sendError(c, "BAD_REQUEST", "malformed game:navigate_result payload")
		return
	}
	room, err := g.manager.NavigateResult(ctx, roomID, payload.Direction)
	if err != nil {
		g.sendGameErr(c, "failed to navigate result", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
}

func (g *Gateway) handleCompleteReveal(ctx context.Context, c *Conn) {
	roomID, _, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	room, transitioned, err := g.manager.CompleteReveal(ctx, roomID)
	if err != nil {
		g.sendGameErr(c, "failed to complete reveal", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if transitioned {
		g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.Status)})
		g.reschedulePhaseTimer(room)
	}
}

func (g *Gateway) handleNextRound(ctx context.Context, c *Conn) {
	roomID, playerID, ok := g.requireIdentity(c)
	if !ok {
		return
	}
	if !g.requireHost(ctx, c, roomID, playerID) {
		return
	}
	room, err := g.manager.StartNextRound(ctx, roomID)
	if err != nil {
		g.sendGameErr(c, "failed to start next round", err)
		return
	}
	g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.CurrentRoundPtr().Status)})
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	g.reschedulePhaseTimer(room)
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, dst)
}
