package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/unichat/internal/middleware"
	"github.com/mbeoliero/unichat/internal/service"
	"github.com/mbeoliero/unichat/pkg/errcode"
	"github.com/mbeoliero/unichat/pkg/response"
)

// PresenceHandler handles presence requests
type PresenceHandler struct {
	presenceService *service.PresenceService
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// UpdateStatusRequest represents update online status request
type UpdateStatusRequest struct {
	IsOnline bool `json:"is_online"`
}

// UpdateStatus sets the caller's online flag
func (h *PresenceHandler) UpdateStatus(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req UpdateStatusRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.presenceService.UpdateUserOnlineStatus(ctx, userId, req.IsOnline); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// Heartbeat refreshes the caller's last seen time
func (h *PresenceHandler) Heartbeat(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	if err := h.presenceService.Heartbeat(ctx, userId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// GetStatus returns the presence of user_id
func (h *PresenceHandler) GetStatus(ctx context.Context, c *app.RequestContext) {
	userId := c.Query("user_id")
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	presence, err := h.presenceService.GetUserOnlineStatus(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, presence)
}
