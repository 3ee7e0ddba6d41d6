// Package session guarda a sessão de conexão com a conta MT5.
// A sessão é passada explicitamente aos serviços que buscam histórico.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/storage/cache"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
	"github.com/jeovahfialho/mt5-history/pkg/metrics"
)

var (
	ErrSessionNotFound = errors.New("sessão não encontrada")
	ErrInvalidLogin    = errors.New("login é obrigatório")
)

const keyPrefix = "session:"

type Session struct {
	Token       string    `json:"token"`
	Login       string    `json:"login"`
	Server      string    `json:"server,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

type Credentials struct {
	Login  string `json:"login"`
	Server string `json:"server"`
}

// Store é o subconjunto do cache usado pelo Manager.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// OnDisconnect é chamado com o login depois que a sessão é removida.
type OnDisconnect func(ctx context.Context, login string)

type Manager struct {
	store        Store
	ttl          time.Duration
	now          func() time.Time
	newToken     func() string
	onDisconnect OnDisconnect
}

func NewManager(store Store, ttl time.Duration, onDisconnect OnDisconnect) *Manager {
	return &Manager{
		store:        store,
		ttl:          ttl,
		now:          time.Now,
		newToken:     func() string { return uuid.NewString() },
		onDisconnect: onDisconnect,
	}
}

func (m *Manager) Connect(ctx context.Context, creds Credentials) (*Session, error) {
	login := strings.TrimSpace(creds.Login)
	if login == "" {
		return nil, ErrInvalidLogin
	}

	sess := &Session{
		Token:       m.newToken(),
		Login:       login,
		Server:      strings.TrimSpace(creds.Server),
		ConnectedAt: m.now().UTC(),
	}

	if err := m.store.Set(ctx, keyPrefix+sess.Token, sess, m.ttl); err != nil {
		return nil, fmt.Errorf("erro ao salvar sessão: %w", err)
	}

	metrics.SessionsOpened.Inc()
	logger.Info("sessão aberta",
		zap.String("login", sess.Login),
		zap.String("server", sess.Server))

	return sess, nil
}

func (m *Manager) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	var sess Session
	if err := m.store.Get(ctx, keyPrefix+token, &sess); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("erro ao buscar sessão: %w", err)
	}

	return &sess, nil
}

func (m *Manager) Disconnect(ctx context.Context, token string) error {
	sess, err := m.Get(ctx, token)
	if err != nil {
		return err
	}

	if err := m.store.Delete(ctx, keyPrefix+token); err != nil {
		return fmt.Errorf("erro ao remover sessão: %w", err)
	}

	metrics.SessionsClosed.Inc()
	logger.Info("sessão encerrada", zap.String("login", sess.Login))

	if m.onDisconnect != nil {
		m.onDisconnect(ctx, sess.Login)
	}

	return nil
}
