package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"promptguessr/internal/gameerr"
)

type createRoomRequest struct {
	PlayerName string `json:"playerName" binding:"required,displayname"`
	RoundCount int    `json:"roundCount,omitempty"`
	ImageCount int    `json:"imageCount,omitempty"`
}

type joinRoomRequest struct {
	Code       string `json:"roomCode" binding:"required,min=4,max=8"`
	PlayerName string `json:"playerName" binding:"required,displayname"`
}

type roomIdentityResponse struct {
	RoomID   string `json:"roomId"`
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

var bindErrorMessages = map[string]map[string]string{
	"PlayerName": {
		"required":    "playerName is required",
		"displayname": "playerName is invalid",
	},
	"Code": {
		"required": "roomCode is required",
		"min":      "roomCode must be 4 to 8 characters",
		"max":      "roomCode must be 4 to 8 characters",
	},
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req, "invalid request") {
		return
	}
	room, playerID, err := s.manager.CreateRoom(c.Request.Context(), req.PlayerName, parseSettings(req))
	if err != nil {
		s.respondError(c, "createRoom", err)
		return
	}
	c.JSON(http.StatusOK, roomIdentityResponse{RoomID: room.ID, RoomCode: room.Code, PlayerID: playerID})
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if !bindJSON(c, &req, "invalid request") {
		return
	}
	room, playerID, err := s.manager.JoinRoom(c.Request.Context(), strings.ToUpper(req.Code), req.PlayerName)
	if err != nil {
		s.respondError(c, "joinRoom", err)
		return
	}
	c.JSON(http.StatusOK, roomIdentityResponse{RoomID: room.ID, RoomCode: room.Code, PlayerID: playerID})
}

func (s *Server) handleGetRoomByCode(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	roomID, err := s.manager.RoomIDForCode(c.Request.Context(), code)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	room, err := s.manager.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (s *Server) handleHealth(c *gin.Context) {
	s.probeStore(c)
}

func (s *Server) handleReady(c *gin.Context) {
	s.probeStore(c)
}

// probeStore answers both /health and /ready: 200 when the KV store is
// reachable, 503 otherwise.
func (s *Server) probeStore(c *gin.Context) {
	if _, _, err := s.store.Get(c.Request.Context(), "readiness-probe"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.Status(http.StatusOK)
}

func bindJSON(c *gin.Context, req any, fallback string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": resolveBindError(err, fallback)})
		return false
	}
	return true
}

func resolveBindError(err error, fallback string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, verr := range verrs {
			if fieldMsgs, ok := bindErrorMessages[verr.Field()]; ok {
				if msg, ok := fieldMsgs[verr.Tag()]; ok {
					return msg
				}
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return "invalid request"
}

func (s *Server) respondError(c *gin.Context, op string, err error) {
	var ge *gameerr.Error
	if !errors.As(err, &ge) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	switch ge.Kind {
	// Treated as a 404 uniformly, including on joinRoom, rather than 400.
	case gameerr.KindRoomNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": ge.Error()})
	case gameerr.KindCodeExhaustion, gameerr.KindStoreUnavailable:
		c.JSON(http.StatusInternalServerError, gin.H{"error": ge.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": ge.Error()})
	}
}
