package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/present/rest/presenter"
	"github.com/lacomunita/comunita/internal/service"
	"github.com/lacomunita/comunita/internal/usecase"
)

// RealtimeStreamer feeds live events for the chat ids received on input
// until the context is done.
type RealtimeStreamer interface {
	Realtime(ctx context.Context, input chan []int64, output chan domain.Event)
}

type Handler struct {
	user       *usecase.UserUsecase
	community  *usecase.CommunityUsecase
	group      *usecase.GroupUsecase
	chat       *usecase.ChatUsecase
	message    *usecase.MessageUsecase
	invitation *usecase.InvitationUsecase
	auth       *service.AuthService
	signal     RealtimeStreamer
}

func NewHandler(
	user *usecase.UserUsecase,
	community *usecase.CommunityUsecase,
	group *usecase.GroupUsecase,
	chat *usecase.ChatUsecase,
	message *usecase.MessageUsecase,
	invitation *usecase.InvitationUsecase,
	auth *service.AuthService,
	signal RealtimeStreamer,
) *Handler {
	return &Handler{
		user:       user,
		community:  community,
		group:      group,
		chat:       chat,
		message:    message,
		invitation: invitation,
		auth:       auth,
		signal:     signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/register", h.handleRegister)
	e.POST("/api/v1/login", h.handleLogin)

	e.GET("/users", h.handleUserList)
	e.GET("/users/:id", h.handleUserGet)

	e.GET("/communities", h.handleCommunityList)
	e.POST("/communities", h.handleCommunityCreate)
	e.GET("/communities/:id", h.handleCommunityGet)
	e.POST("/communities/:id/join", h.handleCommunityJoin)
	e.POST("/communities/:id/leave", h.handleCommunityLeave)

	e.GET("/groups", h.handleGroupList)
	e.POST("/groups", h.handleGroupCreate)
	e.GET("/groups/:id", h.handleGroupGet)
	e.POST("/groups/:id/leave", h.handleGroupLeave)

	e.GET("/chats", h.handleChatList)
	e.POST("/chats", h.handleChatCreate)
	e.GET("/chats/:id", h.handleChatGet)
	e.POST("/chats/:id/leave", h.handleChatLeave)

	e.GET("/messages", h.handleMessageList)
	e.POST("/messages", h.handleMessageCreate)
	e.POST("/messages/:id/seen", h.handleMessageSeen)

	e.GET("/groupinvitations", h.handleInvitationList(domain.InviteTargetGroup))
	e.POST("/groupinvitations", h.handleInvitationCreate(domain.InviteTargetGroup))
	e.POST("/groupinvitations/:id/accept", h.handleInvitationAccept(domain.InviteTargetGroup))
	e.POST("/groupinvitations/:id/reject", h.handleInvitationReject(domain.InviteTargetGroup))

	e.GET("/chatinvitations", h.handleInvitationList(domain.InviteTargetChat))
	e.POST("/chatinvitations", h.handleInvitationCreate(domain.InviteTargetChat))
	e.POST("/chatinvitations/:id/accept", h.handleInvitationAccept(domain.InviteTargetChat))
	e.POST("/chatinvitations/:id/reject", h.handleInvitationReject(domain.InviteTargetChat))

	e.GET("/realtime", h.handleRealtime)
}

// requesterID extracts the authenticated actor set by the auth middleware.
func requesterID(c echo.Context) (int64, bool) {
	v := c.Request().Context().Value(domain.RequesterIDCtxKey)
	id, ok := v.(int64)
	return id, ok
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// respondError maps domain failures to status codes. Order matters: the
// taxonomy is flat, each error matches exactly one class.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return presenter.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return presenter.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return presenter.BadRequestMessage(c, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return presenter.Conflict(c, err.Error())
	default:
		return presenter.InternalError(c, err)
	}
}

// --- auth ---

type credentialsRequest struct {
	Handle     string `json:"handle"`
	Password   string `json:"password"`
	PictureURL string `json:"pictureURL"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) handleRegister(c echo.Context) error {
	ctx := c.Request().Context()

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	user, err := h.user.Register(ctx, req.Handle, req.Password, req.PictureURL)
	if err != nil {
		return respondError(c, err)
	}

	token, err := h.auth.IssueToken(user)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	return presenter.Created(c, tokenResponse{Token: token, User: user})
}

func (h *Handler) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	user, err := h.user.Authenticate(ctx, req.Handle, req.Password)
	if err != nil {
		return presenter.Unauthorized(c, "invalid credentials")
	}

	token, err := h.auth.IssueToken(user)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, tokenResponse{Token: token, User: user})
}

// --- users ---

func (h *Handler) handleUserList(c echo.Context) error {
	users, err := h.user.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, users)
}

func (h *Handler) handleUserGet(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid user id")
	}

	user, err := h.user.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, user)
}

// --- communities ---

type communityRequest struct {
	Name       string `json:"name"`
	PictureURL string `json:"pictureURL"`
}

func (h *Handler) handleCommunityList(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	communities, err := h.community.List(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, communities)
}

func (h *Handler) handleCommunityCreate(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req communityRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	community, err := h.community.Create(c.Request().Context(), req.Name, req.PictureURL, actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.Created(c, community)
}

func (h *Handler) handleCommunityGet(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid community id")
	}

	community, err := h.community.Get(c.Request().Context(), id, actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, community)
}

func (h *Handler) handleCommunityJoin(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid community id")
	}

	if err := h.community.Join(c.Request().Context(), id, actor); err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleCommunityLeave(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid community id")
	}

	if err := h.community.Leave(c.Request().Context(), id, actor); err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// --- groups ---

type groupRequest struct {
	Name        string `json:"name"`
	PictureURL  string `json:"pictureURL"`
	CommunityID int64  `json:"communityID"`
}

func (h *Handler) handleGroupList(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	groups, err := h.group.List(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, groups)
}

func (h *Handler) handleGroupCreate(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req groupRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	group, err := h.group.Create(c.Request().Context(), req.Name, req.PictureURL, req.CommunityID, actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.Created(c, group)
}

func (h *Handler) handleGroupGet(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid group id")
	}

	group, err := h.group.Get(c.Request().Context(), id, actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, group)
}

func (h *Handler) handleGroupLeave(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid group id")
	}

	if err := h.group.Leave(c.Request().Context(), id, actor); err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// --- chats ---

type chatRequest struct {
	Name    string `json:"name"`
	GroupID *int64 `json:"groupID"`
}

func (h *Handler) handleChatList(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	chats, err := h.chat.List(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, chats)
}

func (h *Handler) handleChatCreate(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	chat, err := h.chat.Create(c.Request().Context(), req.Name, req.GroupID, actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.Created(c, chat)
}

func (h *Handler) handleChatGet(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid chat id")
	}

	chat, err := h.chat.Get(c.Request().Context(), id, actor)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, chat)
}

func (h *Handler) handleChatLeave(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid chat id")
	}

	if err := h.chat.Leave(c.Request().Context(), id, actor); err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// --- messages ---

// Any client-supplied sender is ignored; the sender is always the
// authenticated actor.
type messageRequest struct {
	ChatID  int64  `json:"chatID"`
	Content string `json:"content"`
}

func (h *Handler) handleMessageList(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var chatID *int64
	if raw := c.QueryParam("chat"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid chat parameter")
		}
		chatID = &parsed
	}

	messages, err := h.message.List(c.Request().Context(), actor, chatID)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, messages)
}

func (h *Handler) handleMessageCreate(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	message, err := h.message.Create(c.Request().Context(), req.ChatID, actor, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.Created(c, message)
}

func (h *Handler) handleMessageSeen(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	id, err := pathID(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid message id")
	}

	if err := h.message.MarkSeen(c.Request().Context(), id, actor); err != nil {
		return respondError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// --- invitations ---

// The inviter is never client input; only the invitee and target are.
type invitationRequest struct {
	TargetID int64 `json:"targetID"`
	Invitee  int64 `json:"invitee"`
}

func (h *Handler) handleInvitationList(kind domain.InvitationTargetKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := requesterID(c)
		if !ok {
			return presenter.Unauthorized(c, "authentication required")
		}

		invitations, err := h.invitation.List(c.Request().Context(), kind, actor)
		if err != nil {
			return respondError(c, err)
		}
		return presenter.OK(c, invitations)
	}
}

func (h *Handler) handleInvitationCreate(kind domain.InvitationTargetKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := requesterID(c)
		if !ok {
			return presenter.Unauthorized(c, "authentication required")
		}

		var req invitationRequest
		if err := c.Bind(&req); err != nil {
			return presenter.BadRequest(c, err)
		}

		invitation, err := h.invitation.Create(c.Request().Context(), kind, req.TargetID, actor, req.Invitee)
		if err != nil {
			return respondError(c, err)
		}
		return presenter.Created(c, invitation)
	}
}

func (h *Handler) handleInvitationAccept(kind domain.InvitationTargetKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := requesterID(c)
		if !ok {
			return presenter.Unauthorized(c, "authentication required")
		}

		id, err := pathID(c)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid invitation id")
		}

		invitation, err := h.invitation.Accept(c.Request().Context(), kind, id, actor)
		if err != nil {
			return respondError(c, err)
		}
		return presenter.OK(c, invitation)
	}
}

func (h *Handler) handleInvitationReject(kind domain.InvitationTargetKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := requesterID(c)
		if !ok {
			return presenter.Unauthorized(c, "authentication required")
		}

		id, err := pathID(c)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid invitation id")
		}

		invitation, err := h.invitation.Reject(c.Request().Context(), kind, id, actor)
		if err != nil {
			return respondError(c, err)
		}
		return presenter.OK(c, invitation)
	}
}

// --- realtime ---

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type  string  `json:"type"`
	Chats []int64 `json:"chats"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	actor, ok := requesterID(c)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// The channels are never closed; cancellation unblocks the streamer and
	// the read goroutine, closing either channel could panic a blocked sender.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []int64)
	output := make(chan domain.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				break
			}

			switch req.Type {
			case "listen":
				// Only chats the actor belongs to are subscribable.
				allowed := []int64{}
				for _, chatID := range req.Chats {
					member, err := h.chat.IsMember(ctx, chatID, actor)
					if err != nil {
						slog.ErrorContext(
							ctx, "Membership check failed",
							slog.String("error", err.Error()),
							slog.String("module", "socket"),
						)
						continue
					}
					if member {
						allowed = append(allowed, chatID)
					}
				}
				select {
				case input <- allowed:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %v", allowed),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case items := <-output:
			err := ws.WriteJSON(items)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
