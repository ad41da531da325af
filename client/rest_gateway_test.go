package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttputil"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/dto/req"
	"marketplace-chat/dto/res"
	"marketplace-chat/engine"
	"marketplace-chat/enum"
)

const testToken = "test-token"

func newFakeAPI(t *testing.T) *fasthttputil.InmemoryListener {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+testToken {
			return c.Status(fiber.StatusUnauthorized).JSON(res.Fail("missing or invalid token"))
		}
		return c.Next()
	})

	api := app.Group("/api/v1")
	api.Get("/auth/me", func(c *fiber.Ctx) error {
		return c.JSON(res.OK("Current user", res.UserResponse{ID: "u1", Name: "Buyer"}))
	})
	api.Get("/chats", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusInternalServerError).SendString("upstream exploded")
	})
	api.Post("/messages", func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			if fh, _ := c.FormFile("file"); fh != nil && fh.Filename == "oversized.mp4" {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(res.Fail("request body too large"))
			}
			if c.FormValue("type") == string(enum.MessageTypeVideo) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(res.Fail("unsupported content type"))
			}
			fh, err := c.FormFile("file")
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(res.Fail("file is required"))
			}
			return c.JSON(res.OK("Message sent", dto.Message{
				ID:            "srv-2",
				ChatID:        c.FormValue("chatId"),
				Type:          enum.MessageType(c.FormValue("type")),
				CorrelationID: c.FormValue("correlationId"),
				File:          &dto.FileRef{Name: fh.Filename, MimeType: fh.Header.Get(fiber.HeaderContentType), Size: fh.Size},
			}))
		}
		var body req.SendMessageRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(res.Fail(err.Error()))
		}
		return c.JSON(res.OK("Message sent", dto.Message{
			ID: "srv-1", ReceiverID: body.ReceiverID, Type: body.Type, Text: body.Text, CorrelationID: body.CorrelationID,
		}))
	})
	api.Get("/chats/:chatId/messages", func(c *fiber.Ctx) error {
		skip, _ := strconv.Atoi(c.Query("skip"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		next := skip + limit
		return c.JSON(res.OK("Messages", res.MessagePage{
			Messages:   []dto.Message{{ID: "m1", ChatID: c.Params("chatId")}},
			NextCursor: &next,
		}))
	})
	api.Put("/messages/:messageId", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusForbidden).JSON(res.Fail("edit window has passed"))
	})
	api.Delete("/messages/:messageId", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(res.Fail("message not found"))
	})
	api.Put("/chats/:chatId/seen", func(c *fiber.Ctx) error {
		return c.JSON(res.OK("Marked as seen", res.MarkSeenResponse{ChatID: c.Params("chatId"), Updated: 3}))
	})

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return ln
}

func newTestGateway(ln *fasthttputil.InmemoryListener, token string) *RESTGateway {
	return NewRESTGateway("http://chat.test", token, WithDialer(func(string) (net.Conn, error) {
		return ln.Dial()
	}))
}

func TestCreateTextMessage(t *testing.T) {
	gw := newTestGateway(newFakeAPI(t), testToken)

	msg, err := gw.Create(context.Background(), req.SendMessageRequest{
		ReceiverID: "u2", Type: enum.MessageTypeText, Text: "Hello", CorrelationID: "corr-1",
	}, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if msg.ID != "srv-1" || msg.Text != "Hello" || msg.CorrelationID != "corr-1" || msg.ReceiverID != "u2" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestCreateWithAttachmentUsesMultipart(t *testing.T) {
	gw := newTestGateway(newFakeAPI(t), testToken)

	msg, err := gw.Create(context.Background(), req.SendMessageRequest{
		ChatID: "chat-1", Type: enum.MessageTypeFile, CorrelationID: "corr-2",
	}, &engine.Attachment{Name: "invoice.pdf", ContentType: "application/pdf", Size: 8, Reader: strings.NewReader("%PDF-1.4")})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if msg.File == nil || msg.File.Name != "invoice.pdf" || msg.File.Size != 8 || msg.File.MimeType != "application/pdf" {
		t.Fatalf("file not transmitted: %+v", msg.File)
	}
	if msg.ChatID != "chat-1" || msg.CorrelationID != "corr-2" || msg.Type != enum.MessageTypeFile {
		t.Errorf("form fields not transmitted: %+v", msg)
	}

	_, err = gw.Create(context.Background(), req.SendMessageRequest{ChatID: "chat-1", Type: enum.MessageTypeVideo},
		&engine.Attachment{Name: "clip.exe", Size: 2, Reader: strings.NewReader("MZ")})
	if !errors.Is(err, apperror.ErrUpload) {
		t.Errorf("422 must surface as UploadFailure, got %v", err)
	}

	_, err = gw.Create(context.Background(), req.SendMessageRequest{ChatID: "chat-1", Type: enum.MessageTypeVideo},
		&engine.Attachment{Name: "oversized.mp4", Size: 2, Reader: strings.NewReader("00")})
	if !errors.Is(err, apperror.ErrUpload) || apperror.Retryable(err) {
		t.Errorf("413 must surface as a non-retryable UploadFailure, got %v", err)
	}
}

func TestPaginateAndMarkSeen(t *testing.T) {
	gw := newTestGateway(newFakeAPI(t), testToken)

	page, err := gw.Paginate(context.Background(), "chat-1", 20, 20)
	if err != nil {
		t.Fatalf("paginate failed: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ChatID != "chat-1" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.NextCursor == nil || *page.NextCursor != 40 {
		t.Errorf("skip and limit not forwarded, cursor %v", page.NextCursor)
	}

	seen, err := gw.MarkSeen(context.Background(), "chat-1")
	if err != nil || seen.Updated != 3 {
		t.Errorf("mark seen: %+v, %v", seen, err)
	}
}

func TestErrorEnvelopesMapToKinds(t *testing.T) {
	ln := newFakeAPI(t)
	gw := newTestGateway(ln, testToken)
	ctx := context.Background()

	if _, err := gw.Edit(ctx, "m1", "late"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("403 must be Forbidden, got %v", err)
	}
	if err := gw.Delete(ctx, "m1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("404 must be NotFound, got %v", err)
	}
	if _, err := gw.Conversations(ctx); !errors.Is(err, apperror.ErrTransport) {
		t.Errorf("5xx must be TransportFailure, got %v", err)
	}
	if _, err := newTestGateway(ln, "wrong").Me(ctx); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("401 must be Forbidden, got %v", err)
	}

	me, err := gw.Me(ctx)
	if err != nil || me.ID != "u1" {
		t.Errorf("me: %+v, %v", me, err)
	}
}

func TestUnreachableServerIsTransportFailure(t *testing.T) {
	gw := NewRESTGateway("http://chat.test", testToken, WithDialer(func(string) (net.Conn, error) {
		return nil, io.ErrClosedPipe
	}))

	_, err := gw.Create(context.Background(), req.SendMessageRequest{ReceiverID: "u2", Type: enum.MessageTypeText, Text: "hi"}, nil)
	if !errors.Is(err, apperror.ErrTransport) || !apperror.Retryable(err) {
		t.Fatalf("expected retryable TransportFailure, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gw.Me(ctx); !errors.Is(err, apperror.ErrTransport) {
		t.Errorf("cancelled context must be TransportFailure, got %v", err)
	}
}
