package middleware

import (
	"strings"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"marketplace-chat/config/common"
	"marketplace-chat/dto/res"
	"marketplace-chat/security"
)

// UserIDKey is the fiber Locals key holding the authenticated user id.
const UserIDKey = "user_id"

type Middleware struct {
	*common.Config
	*security.JWT
	Log *logrus.Logger

	protect fiber.Handler
}

func NewMiddleware(config *common.Config, jwtSecurity *security.JWT, logger *logrus.Logger) *Middleware {
	m := &Middleware{Config: config, JWT: jwtSecurity, Log: logger}
	m.protect = jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: jwt.SigningMethodHS512.Alg(),
			Key:    config.GetJwtConfig(),
		},
		ContextKey:     "jwt",
		SuccessHandler: m.ExtractUserID,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			m.Log.WithError(err).Warn("Failed to validate JWT")
			return unauthorized(ctx, "Token is not valid")
		},
	})
	return m
}

func (middleware *Middleware) JWTProtected(c *fiber.Ctx) error {
	return middleware.protect(c)
}

// ExtractUserID runs after the token passed verification and copies its subject into Locals.
func (middleware *Middleware) ExtractUserID(c *fiber.Ctx) error {
	token, ok := c.Locals("jwt").(*jwt.Token)
	if !ok {
		return unauthorized(c, "Token is not valid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c, "Token is not valid")
	}
	userID, err := security.UserIDFromClaims(claims)
	if err != nil {
		middleware.Log.WithError(err).Error("Failed to extract user ID from token")
		return unauthorized(c, "Failed to extract user ID from token")
	}

	c.Locals(UserIDKey, userID)
	return c.Next()
}

// WebSocketUpgrade authenticates the handshake. Browsers cannot set headers on a websocket
// request, so the token may also come from the "token" query parameter.
func (middleware *Middleware) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	}
	userID, err := middleware.JWT.GetUserIdFromToken(token)
	if err != nil {
		middleware.Log.WithError(err).Warn("Rejected websocket handshake")
		return unauthorized(c, "Token is not valid")
	}

	c.Locals(UserIDKey, userID)
	return c.Next()
}

// ActorID returns the authenticated user id; empty outside protected routes.
func ActorID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(res.Fail(message))
}
