package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chathub-io/chathub/internal/auth"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/internal/presence"
	"github.com/chathub-io/chathub/internal/repo/mongodb"
	"github.com/chathub-io/chathub/internal/reward"
	pkgmdw "github.com/chathub-io/chathub/internal/server/middleware"
	"github.com/chathub-io/chathub/pkg/util"
)

type Controller interface {
	Health(c echo.Context) error
	Login(c echo.Context) error
	GetProfile(c echo.Context) error
	GetPointHistory(c echo.Context) error
	GetOnlineUsers(c echo.Context) error
	GetDirectMessages(c echo.Context) error
	GetGroups(c echo.Context) error
	GetGroup(c echo.Context) error
	CreateGroup(c echo.Context) error
	GetGroupMessages(c echo.Context) error
	GetChallenges(c echo.Context) error
	SubmitQuizResult(c echo.Context) error
}

type controller struct {
	authService *auth.Service
	messages    mongodb.MessageRepository
	groups      mongodb.GroupRepository
	challenges  mongodb.ChallengeRepository
	history     mongodb.PointHistoryRepository
	ledger      *reward.Ledger
	registry    *presence.Registry
}

func NewController(
	authService *auth.Service,
	messages mongodb.MessageRepository,
	groups mongodb.GroupRepository,
	challenges mongodb.ChallengeRepository,
	history mongodb.PointHistoryRepository,
	ledger *reward.Ledger,
	registry *presence.Registry,
) Controller {
	return &controller{
		authService: authService,
		messages:    messages,
		groups:      groups,
		challenges:  challenges,
		history:     history,
		ledger:      ledger,
		registry:    registry,
	}
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "chathub",
	})
}

func (h *controller) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, response)
}

func (h *controller) GetProfile(c echo.Context) error {
	return c.JSON(http.StatusOK, pkgmdw.GetUser(c))
}

func (h *controller) GetPointHistory(c echo.Context) error {
	entries, err := h.history.ListByUser(c.Request().Context(), pkgmdw.GetUserID(c), queryLimit(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *controller) GetOnlineUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"users": h.registry.Snapshot(),
	})
}

// GetDirectMessages returns the direct conversation between the caller
// and :user_id, newest first, with optional before-cursor paging.
func (h *controller) GetDirectMessages(c echo.Context) error {
	otherID := c.Param("user_id")
	before, err := queryBefore(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid before cursor")
	}

	messages, err := h.messages.GetDirectConversation(
		c.Request().Context(), pkgmdw.GetUserID(c), otherID, queryLimit(c), before)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

func (h *controller) GetGroups(c echo.Context) error {
	groups, err := h.groups.ListForUser(c.Request().Context(), pkgmdw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *controller) GetGroup(c echo.Context) error {
	groupID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid group id")
	}

	group, err := h.groups.GetByID(c.Request().Context(), groupID)
	if err != nil {
		return httpError(err)
	}
	if !group.IsMember(pkgmdw.GetUserID(c)) {
		return echo.NewHTTPError(http.StatusForbidden, "not a group member")
	}
	return c.JSON(http.StatusOK, group)
}

func (h *controller) CreateGroup(c echo.Context) error {
	var req models.CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ownerID := pkgmdw.GetUserID(c)
	members := req.Members
	if !util.SliceIncludes(members, ownerID) {
		members = append(members, ownerID)
	}

	group := &models.Group{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
		Members:     members,
		AdminsOnly:  req.AdminsOnly,
	}
	if err := h.groups.Create(c.Request().Context(), group); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, group)
}

func (h *controller) GetGroupMessages(c echo.Context) error {
	groupID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid group id")
	}
	before, err := queryBefore(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid before cursor")
	}

	ctx := c.Request().Context()
	group, err := h.groups.GetByID(ctx, groupID)
	if err != nil {
		return httpError(err)
	}
	if !group.IsMember(pkgmdw.GetUserID(c)) {
		return echo.NewHTTPError(http.StatusForbidden, "not a group member")
	}

	messages, err := h.messages.GetGroupMessages(ctx, groupID, queryLimit(c), before)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

func (h *controller) GetChallenges(c echo.Context) error {
	challenges, err := h.challenges.ListActive(c.Request().Context(), pkgmdw.GetUserID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, challenges)
}

// SubmitQuizResult scores a quiz challenge: partial correctness earns
// proportional points, full correctness completes the challenge.
func (h *controller) SubmitQuizResult(c echo.Context) error {
	challengeID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid challenge id")
	}

	var req models.QuizResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	points, err := h.ledger.ApplyQuizResult(
		c.Request().Context(), pkgmdw.GetUserID(c), challengeID, req.Correct, req.Total)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"points_earned": points,
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func queryLimit(c echo.Context) int64 {
	const defaultLimit = 50
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 || limit > 200 {
		return defaultLimit
	}
	return limit
}

func queryBefore(c echo.Context) (*primitive.ObjectID, error) {
	raw := c.QueryParam("before")
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
