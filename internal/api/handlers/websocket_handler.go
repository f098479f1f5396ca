package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"auction-engine/internal/api/middleware"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
	gorilla "github.com/gorilla/websocket"
)

type AuctionLookup interface {
	GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error)
}

type WebSocketHandler struct {
	auctions    AuctionLookup
	connManager domain.ConnectionManager
	upgrader    gorilla.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(auctions AuctionLookup, connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		auctions:    auctions,
		connManager: connManager,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// HandleConnection upgrades a viewer of a live auction and keeps it registered
// until the peer disconnects or the auction ends.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get(middleware.HeaderUserID))
	}
	if userID == "" {
		http.Error(w, "user_id required", http.StatusUnauthorized)
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to look up auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if auction.IsTerminal() {
		h.log.Info("Rejected connection, auction is over", "auction_id", auctionID, "status", auction.Status)
		http.Error(w, "auction is over", http.StatusGone)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "auction_id", auctionID, "error", err)
		return
	}

	conn := websocket.NewConnection(ws, userID, auctionID, h.log)
	if err := h.connManager.RegisterConnection(userID, auctionID, conn); err != nil {
		h.log.Error("Failed to register connection", "auction_id", auctionID, "user_id", userID, "error", err)
		_ = conn.Close()
		return
	}

	go h.serve(conn)
}

func (h *WebSocketHandler) serve(conn *websocket.Connection) {
	defer func() {
		if err := h.connManager.ReleaseConnection(conn); err != nil {
			h.log.Error("Failed to release connection", "user_id", conn.UserID(), "error", err)
		}
		_ = conn.Close()
	}()

	go conn.PingLoop()
	conn.ReadLoop()
}
