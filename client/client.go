package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"marketplace-chat/engine"
	"marketplace-chat/presence"
)

type Config struct {
	BaseURL  string
	WSURL    string
	Token    string
	Window   time.Duration
	PageSize int
	Logger   *logrus.Logger
	Gateway  []GatewayOption
	Dialer   *websocket.Dialer
	Clock    presence.Clock
}

// Client is a signed-in user: the REST gateway, the message engine and the realtime session.
type Client struct {
	Gateway *RESTGateway
	Engine  *engine.Engine
	Session *Session
}

// Connect resolves the user behind the token and opens the realtime session.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	gateway := NewRESTGateway(cfg.BaseURL, cfg.Token, append([]GatewayOption{WithLogger(log)}, cfg.Gateway...)...)

	me, err := gateway.Me(ctx)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Config{
		UserID:   me.ID,
		Gateway:  gateway,
		Logger:   log,
		Window:   cfg.Window,
		PageSize: cfg.PageSize,
	})

	session, err := Dial(ctx, SessionConfig{
		URL:    cfg.WSURL,
		Token:  cfg.Token,
		Engine: eng,
		Clock:  cfg.Clock,
		Logger: log,
		Dialer: cfg.Dialer,
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Connected as user %s", me.ID)
	return &Client{Gateway: gateway, Engine: eng, Session: session}, nil
}

func (c *Client) Close() {
	c.Session.Close()
}
