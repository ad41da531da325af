// Package client is the Go SDK for the chat service: a REST gateway, a realtime session and the
// engine and presence coordinator wired between them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/dto/req"
	"marketplace-chat/dto/res"
	"marketplace-chat/engine"
)

const apiPrefix = "/api/v1"

// RESTGateway implements engine.Gateway against the REST surface, acting as the token's user.
type RESTGateway struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *fasthttp.Client
	log     *logrus.Logger
}

type GatewayOption func(*RESTGateway)

func WithTimeout(d time.Duration) GatewayOption {
	return func(g *RESTGateway) { g.timeout = d }
}

// WithDialer replaces the TCP dialer, e.g. with an in-memory listener in tests.
func WithDialer(dial func(addr string) (net.Conn, error)) GatewayOption {
	return func(g *RESTGateway) { g.client.Dial = dial }
}

func WithLogger(log *logrus.Logger) GatewayOption {
	return func(g *RESTGateway) { g.log = log }
}

func NewRESTGateway(baseURL, token string, opts ...GatewayOption) *RESTGateway {
	g := &RESTGateway{
		baseURL: baseURL,
		token:   token,
		timeout: 10 * time.Second,
		client: &fasthttp.Client{
			Name:                "marketplace-chat-client",
			MaxIdleConnDuration: time.Minute,
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *RESTGateway) Me(ctx context.Context) (res.UserResponse, error) {
	var user res.UserResponse
	err := g.do(ctx, fasthttp.MethodGet, apiPrefix+"/auth/me", "", nil, &user)
	return user, err
}

func (g *RESTGateway) Conversations(ctx context.Context) ([]dto.Conversation, error) {
	var chats []dto.Conversation
	err := g.do(ctx, fasthttp.MethodGet, apiPrefix+"/chats", "", nil, &chats)
	return chats, err
}

func (g *RESTGateway) Create(ctx context.Context, r req.SendMessageRequest, file *engine.Attachment) (dto.Message, error) {
	var msg dto.Message
	if file == nil {
		body, err := json.Marshal(r)
		if err != nil {
			return msg, apperror.Validation("encode message: %v", err)
		}
		err = g.do(ctx, fasthttp.MethodPost, apiPrefix+"/messages", "application/json", body, &msg)
		return msg, err
	}

	body, contentType, err := multipartBody(r, file)
	if err != nil {
		return msg, err
	}
	err = g.do(ctx, fasthttp.MethodPost, apiPrefix+"/messages", contentType, body, &msg)
	return msg, err
}

func (g *RESTGateway) Paginate(ctx context.Context, chatID string, skip, limit int) (res.MessagePage, error) {
	query := url.Values{}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("%s/chats/%s/messages?%s", apiPrefix, url.PathEscape(chatID), query.Encode())

	var page res.MessagePage
	err := g.do(ctx, fasthttp.MethodGet, path, "", nil, &page)
	return page, err
}

func (g *RESTGateway) Edit(ctx context.Context, messageID, text string) (dto.Message, error) {
	var msg dto.Message
	body, err := json.Marshal(req.EditMessageRequest{Text: text})
	if err != nil {
		return msg, apperror.Validation("encode edit: %v", err)
	}
	err = g.do(ctx, fasthttp.MethodPut, apiPrefix+"/messages/"+url.PathEscape(messageID), "application/json", body, &msg)
	return msg, err
}

func (g *RESTGateway) Delete(ctx context.Context, messageID string) error {
	return g.do(ctx, fasthttp.MethodDelete, apiPrefix+"/messages/"+url.PathEscape(messageID), "", nil, nil)
}

func (g *RESTGateway) MarkSeen(ctx context.Context, chatID string) (res.MarkSeenResponse, error) {
	var out res.MarkSeenResponse
	err := g.do(ctx, fasthttp.MethodPut, apiPrefix+"/chats/"+url.PathEscape(chatID)+"/seen", "", nil, &out)
	return out, err
}

func (g *RESTGateway) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return apperror.Transport(method+" "+path, err)
	}
	timeout := g.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	request := fasthttp.AcquireRequest()
	response := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(request)
	defer fasthttp.ReleaseResponse(response)

	request.SetRequestURI(g.baseURL + path)
	request.Header.SetMethod(method)
	request.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+g.token)
	request.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		request.Header.SetContentType(contentType)
		request.SetBody(body)
	}

	if err := g.client.DoTimeout(request, response, timeout); err != nil {
		g.log.WithError(err).Warnf("Request %s %s failed", method, path)
		return apperror.Transport(method+" "+path, err)
	}
	return decodeEnvelope(response.StatusCode(), response.Body(), out)
}

// decodeEnvelope turns a {success,message,data} body back into data or the matching error kind.
func decodeEnvelope(status int, body []byte, out any) error {
	var envelope res.CommonResponse[json.RawMessage]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apperror.Transport(fmt.Sprintf("unreadable response with status %d", status), err)
	}
	if status >= 200 && status < 300 && envelope.Success {
		if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return apperror.Transport("decode response data", err)
		}
		return nil
	}

	message := envelope.Message
	if message == "" {
		message = fasthttp.StatusMessage(status)
	}
	switch status {
	case fasthttp.StatusBadRequest:
		return apperror.New(apperror.KindValidation, message)
	case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden:
		return apperror.New(apperror.KindForbidden, message)
	case fasthttp.StatusNotFound:
		return apperror.New(apperror.KindNotFound, message)
	case fasthttp.StatusUnprocessableEntity, fasthttp.StatusRequestEntityTooLarge:
		return apperror.Upload(message, nil)
	}
	return apperror.Transport(message, fmt.Errorf("status %d", status))
}

func multipartBody(r req.SendMessageRequest, file *engine.Attachment) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"chatId":        r.ChatID,
		"receiverId":    r.ReceiverID,
		"storeId":       r.StoreID,
		"type":          string(r.Type),
		"text":          r.Text,
		"correlationId": r.CorrelationID,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return nil, "", apperror.Validation("encode field %s: %v", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", apperror.Validation("encode file: %v", err)
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return nil, "", apperror.Validation("read attachment: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", apperror.Validation("encode multipart: %v", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
