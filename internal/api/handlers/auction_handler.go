package handlers

import (
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type RegisterAuctionRequest struct {
	ProductID  string    `json:"product_id" validate:"required"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	MinBid     int64     `json:"min_bid" validate:"gt=0"`
	Lot        int       `json:"lot" validate:"gte=1"`
	Condition  string    `json:"condition" validate:"required"`
	MinBidders int       `json:"min_bidders" validate:"gte=1"`
	MaxBidders int       `json:"max_bidders" validate:"gtefield=MinBidders"`
}

type PlaceBidRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

type InviteRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type AuctionStatusResponse struct {
	AuctionID string               `json:"auction_id"`
	Status    domain.AuctionStatus `json:"status"`
}

type HighBidResponse struct {
	AuctionID string `json:"auction_id"`
	Amount    int64  `json:"amount"`
}

type BidHistoryResponse struct {
	AuctionID string        `json:"auction_id"`
	Bids      []*domain.Bid `json:"bids"`
}

type AuctionHandler struct {
	auctions      *services.AuctionManager
	bids          *services.BidService
	participation *services.ParticipationService
	log           logger.Logger
}

func NewAuctionHandler(auctions *services.AuctionManager, bids *services.BidService,
	participation *services.ParticipationService, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions:      auctions,
		bids:          bids,
		participation: participation,
		log:           log,
	}
}

// Register mounts the auction routes on g. Every route requires a caller.
func (h *AuctionHandler) Register(g *echo.Group) {
	g.Use(middleware.Caller())

	g.POST("/auctions", h.RegisterAuction)
	g.GET("/auctions/:id", h.GetAuction)
	g.POST("/auctions/:id/cancel", h.CancelAuction)
	g.POST("/auctions/:id/close", h.CloseAuction)
	g.GET("/auctions/:id/high-bid", h.GetHighBid)
	g.GET("/auctions/:id/bids", h.ListBids)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/participants", h.JoinAuction)
	g.DELETE("/auctions/:id/participants/me", h.LeaveAuction)
	g.DELETE("/auctions/:id/participants/:userId", h.KickParticipant)
	g.POST("/auctions/:id/invitations", h.InviteParticipant)
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("request: %w - malformed body", domain.ErrInvalidArgument)
	}
	return c.Validate(req)
}

func (h *AuctionHandler) RegisterAuction(c echo.Context) error {
	var req RegisterAuctionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	auction, err := h.auctions.RegisterAuction(c.Request().Context(), middleware.CallerFrom(c), services.RegisterAuctionInput{
		ProductID:  req.ProductID,
		StartsAt:   req.StartsAt,
		MinBid:     req.MinBid,
		Lot:        req.Lot,
		Condition:  req.Condition,
		MinBidders: req.MinBidders,
		MaxBidders: req.MaxBidders,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, auction)
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctions.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auction)
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	auctionID := c.Param("id")
	if err := h.auctions.CancelAuction(c.Request().Context(), middleware.CallerFrom(c), auctionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AuctionStatusResponse{AuctionID: auctionID, Status: domain.AuctionCancelled})
}

func (h *AuctionHandler) CloseAuction(c echo.Context) error {
	result, err := h.auctions.CloseAuctionAs(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *AuctionHandler) GetHighBid(c echo.Context) error {
	auctionID := c.Param("id")
	amount, err := h.bids.GetCurrentHighBid(c.Request().Context(), auctionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, HighBidResponse{AuctionID: auctionID, Amount: amount})
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	auctionID := c.Param("id")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("request: %w - limit must be a non-negative integer", domain.ErrInvalidArgument)
		}
		limit = n
	}

	bids, err := h.bids.ListBids(c.Request().Context(), auctionID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BidHistoryResponse{AuctionID: auctionID, Bids: bids})
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	bid, err := h.bids.PlaceBid(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, bid)
}

func (h *AuctionHandler) JoinAuction(c echo.Context) error {
	participant, err := h.participation.JoinAuction(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, participant)
}

func (h *AuctionHandler) LeaveAuction(c echo.Context) error {
	if err := h.participation.LeaveAuction(c.Request().Context(), middleware.CallerFrom(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) KickParticipant(c echo.Context) error {
	err := h.participation.KickParticipant(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) InviteParticipant(c echo.Context) error {
	var req InviteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	participant, err := h.participation.InviteParticipant(c.Request().Context(), middleware.CallerFrom(c), c.Param("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, participant)
}

// HealthCheck reports liveness for the named service.
func HealthCheck(service string, clock domain.Clock) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   service,
			"timestamp": clock.Now().Format(time.RFC3339),
		})
	}
}
