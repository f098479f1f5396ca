package websocket

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"encoding/json"
	"sync"
)

type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

var _ domain.ConnectionManager = (*ConnectionManager)(nil)

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

// RegisterConnection replaces, and closes, an earlier connection of the same user to the same auction.
func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	if previous, ok := cm.connections[auctionID][userID]; ok && previous != conn {
		_ = previous.Close()
		cm.removeUserConn(userID, auctionID)
	}
	cm.connections[auctionID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
	cm.removeUserConn(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// ReleaseConnection unregisters conn unless a newer connection has already replaced it.
func (cm *ConnectionManager) ReleaseConnection(conn domain.WebSocketConnection) error {
	userID, auctionID := conn.UserID(), conn.AuctionID()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if current, ok := cm.connections[auctionID][userID]; !ok || current != conn {
		return nil
	}
	delete(cm.connections[auctionID], userID)
	if len(cm.connections[auctionID]) == 0 {
		delete(cm.connections, auctionID)
	}
	cm.removeUserConn(userID, auctionID)

	cm.log.Info("Connection released", "user_id", userID, "auction_id", auctionID)
	return nil
}

// removeUserConn drops userID's connection to auctionID from the per-user index; callers hold the lock.
func (cm *ConnectionManager) removeUserConn(userID, auctionID string) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}

	var newConns []domain.WebSocketConnection
	for _, existingConn := range userConnections {
		if existingConn.AuctionID() != auctionID {
			newConns = append(newConns, existingConn)
		}
	}

	if len(newConns) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = newConns
	}
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	auctionConns := cm.connections[auctionID]
	delete(cm.connections, auctionID)
	for userID := range auctionConns {
		cm.removeUserConn(userID, auctionID)
	}
	cm.mutex.Unlock()

	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID,
				"auction_id", auctionID, "error", err)
		}
	}

	cm.log.Info("Connections closed for auction", "auction_id", auctionID, "count", len(auctionConns))
	return nil
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.userConns[userID]...)
}

// BroadcastToAuction encodes message once and writes it to every viewer; a failed
// viewer does not stop delivery to the others.
func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	if len(connections) == 0 {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	raw := json.RawMessage(messageBytes)

	for _, conn := range connections {
		if err := conn.Send(raw); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
		}
	}

	cm.log.Debug("Broadcast to auction", "auction_id", auctionID, "connections", len(connections))
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	connections := cm.GetConnectionsForUser(userID)

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	raw := json.RawMessage(messageBytes)

	for _, conn := range connections {
		if err := conn.Send(raw); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}

	return nil
}
