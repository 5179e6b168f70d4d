package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/voicechat/config"
)

// ErrTooManySessions is returned when MaxSessions connections are open
var ErrTooManySessions = errors.New("maximum sessions reached")

// Manager manages all client connections
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	redis       *redis.Client
	config      *config.Config
}

// ConnectRedis returns a client when Redis answers a ping, nil otherwise
func ConnectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Redis unavailable at %s, continuing without it: %v", cfg.RedisURL, err)
		client.Close()
		return nil
	}
	return client
}

// NewManager creates a connection manager, redisClient may be nil
func NewManager(cfg *config.Config, redisClient *redis.Client) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		redis:       redisClient,
		config:      cfg,
	}
}

// CreateConnection registers a new client connection
func (m *Manager) CreateConnection(ctx context.Context, ws *websocket.Conn) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.connections) >= m.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	conn := NewConnection(uuid.New().String(), ws, m.config.KeepAlivePeriod)
	m.storeConnection(ctx, conn)
	return conn, nil
}

// storeConnection saves a connection to memory and Redis
func (m *Manager) storeConnection(ctx context.Context, conn *Connection) {
	m.connections[conn.ID] = conn

	if m.redis != nil {
		m.redis.HSet(ctx, sessionKey(conn.ID), map[string]interface{}{
			"created_at":    conn.CreatedAt.Format(time.RFC3339),
			"last_activity": conn.LastActivity.Format(time.RFC3339),
			"remote_addr":   conn.Conn.RemoteAddr().String(),
			"status":        "active",
		})
		m.redis.SAdd(ctx, activeSessionsKey, conn.ID)
		m.redis.Expire(ctx, sessionKey(conn.ID), m.config.SessionTimeout)
	}
}

// Touch records activity for a connection in Redis
func (m *Manager) Touch(ctx context.Context, id string) {
	if m.redis == nil {
		return
	}
	m.redis.HSet(ctx, sessionKey(id), "last_activity", time.Now().Format(time.RFC3339))
	m.redis.Expire(ctx, sessionKey(id), m.config.SessionTimeout)
}

// GetConnection retrieves a connection by ID
func (m *Manager) GetConnection(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, exists := m.connections[id]
	return conn, exists
}

// RemoveConnection closes and forgets a connection
func (m *Manager) RemoveConnection(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, exists := m.connections[id]
	if !exists {
		return
	}
	conn.Close()
	m.forget(ctx, id)
}

func (m *Manager) forget(ctx context.Context, id string) {
	delete(m.connections, id)

	if m.redis != nil {
		m.redis.Del(ctx, sessionKey(id))
		m.redis.SRem(ctx, activeSessionsKey, id)
	}
}

// Count returns the number of open connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CleanupInactive closes connections idle for longer than SessionTimeout
func (m *Manager) CleanupInactive(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, conn := range m.connections {
		if now.Sub(conn.IdleSince()) > m.config.SessionTimeout {
			log.Printf("⏱️ [%s] Closing inactive connection", id[:8])
			conn.Close()
			m.forget(ctx, id)
			removed++
		}
	}
	return removed
}

// Shutdown closes all connections
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.connections {
		conn.Close()
		m.forget(context.Background(), id)
	}

	if m.redis != nil {
		m.redis.Close()
	}
}

const activeSessionsKey = "active_sessions"

func sessionKey(id string) string {
	return "session:" + id
}
