package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/dto/req"
	"marketplace-chat/enum"
	"marketplace-chat/storage"
)

const maxTextLength = 4000

type ChangeKind string

const (
	ChangeMessages ChangeKind = "messages"
	// ChangeRekeyed means a draft thread received its server id; PreviousID holds the draft key.
	ChangeRekeyed ChangeKind = "rekeyed"
)

type Change struct {
	ChatID     string
	PreviousID string
	Kind       ChangeKind
}

// Draft is a send intent. ChatID is empty on first contact.
type Draft struct {
	ChatID     string
	ReceiverID string
	StoreID    string
	Type       enum.MessageType
	Text       string
	Attachment *Attachment
}

type Config struct {
	UserID   string
	Gateway  Gateway
	Relay    Relay
	Typing   TypingCanceller
	Logger   *logrus.Logger
	Window   time.Duration
	PageSize int
	Policy   *storage.Policy
	Now      func() time.Time
	NewID    func() string
}

type pendingSend struct {
	threadKey  string
	receiverID string
	storeID    string
	kind       enum.MessageType
	text       string
	file       *fileBody
}

type fileBody struct {
	name        string
	contentType string
	data        []byte
}

func (p *pendingSend) attachment() *Attachment {
	if p.file == nil {
		return nil
	}
	return &Attachment{
		Name:        p.file.name,
		ContentType: p.file.contentType,
		Size:        int64(len(p.file.data)),
		Reader:      bytes.NewReader(p.file.data),
	}
}

// Engine holds the local view of every conversation the signed-in user touches. All state
// transitions happen under one mutex; network calls and notifications happen outside it.
type Engine struct {
	mu      sync.Mutex
	threads map[string]*thread
	aliases map[string]string
	pending map[string]*pendingSend
	seq     uint64

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int

	userID   string
	gateway  Gateway
	relay    Relay
	typing   TypingCanceller
	log      *logrus.Logger
	window   time.Duration
	pageSize int
	policy   storage.Policy
	now      func() time.Time
	newID    func() string
}

func New(cfg Config) *Engine {
	e := &Engine{
		threads:  make(map[string]*thread),
		aliases:  make(map[string]string),
		pending:  make(map[string]*pendingSend),
		subs:     make(map[int]func(Change)),
		userID:   cfg.UserID,
		gateway:  cfg.Gateway,
		relay:    cfg.Relay,
		typing:   cfg.Typing,
		log:      cfg.Logger,
		window:   cfg.Window,
		pageSize: cfg.PageSize,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.window <= 0 {
		e.window = 15 * time.Minute
	}
	if e.pageSize <= 0 {
		e.pageSize = 20
	}
	if cfg.Policy != nil {
		e.policy = *cfg.Policy
	} else {
		e.policy = storage.DefaultPolicy()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

func (e *Engine) UserID() string { return e.userID }

// SetRelay attaches the realtime connection once it is up. Sends made before that are
// persisted but not relayed.
func (e *Engine) SetRelay(r Relay) {
	e.mu.Lock()
	e.relay = r
	e.mu.Unlock()
}

func (e *Engine) SetTyping(t TypingCanceller) {
	e.mu.Lock()
	e.typing = t
	e.mu.Unlock()
}

// Subscribe registers fn for change notifications and returns a function that removes it.
func (e *Engine) Subscribe(fn func(Change)) func() {
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// Send validates the draft locally, shows a pending placeholder and submits it. The returned item
// is the confirmed message, or the failed placeholder together with the gateway error.
func (e *Engine) Send(ctx context.Context, d Draft) (Item, error) {
	if err := e.validate(d); err != nil {
		return Item{}, err
	}
	var file *fileBody
	if d.Attachment != nil {
		data, err := io.ReadAll(io.LimitReader(d.Attachment.Reader, d.Attachment.Size+1))
		if err != nil {
			return Item{}, apperror.Validation("read attachment: %v", err)
		}
		if int64(len(data)) != d.Attachment.Size {
			return Item{}, apperror.Validation("attachment is %d bytes, declared %d", len(data), d.Attachment.Size)
		}
		file = &fileBody{name: d.Attachment.Name, contentType: d.Attachment.ContentType, data: data}
	}

	correlationID := e.newID()
	now := e.now()

	e.mu.Lock()
	key := d.ChatID
	if key == "" {
		key = DraftKey(d.ReceiverID, d.StoreID)
	}
	key = e.resolveLocked(key)
	th, ok := e.threads[key]
	if !ok {
		th = newThread(key, d.ReceiverID, d.StoreID, strings.HasPrefix(key, draftPrefix))
		e.threads[key] = th
	}
	receiverID := d.ReceiverID
	if receiverID == "" {
		receiverID = th.CounterpartID
	}

	e.seq++
	placeholder := &Item{
		Message: dto.Message{
			ID:            correlationID,
			ChatID:        th.ID,
			SenderID:      e.userID,
			ReceiverID:    receiverID,
			Type:          d.Type,
			Text:          d.Text,
			CorrelationID: correlationID,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Status: enum.MessageStatusPending,
		seq:    e.seq,
	}
	if file != nil {
		placeholder.File = &dto.FileRef{Name: file.name, MimeType: file.contentType, Size: int64(len(file.data))}
	}
	th.items[correlationID] = placeholder
	e.pending[correlationID] = &pendingSend{
		threadKey:  key,
		receiverID: receiverID,
		storeID:    d.StoreID,
		kind:       d.Type,
		text:       d.Text,
		file:       file,
	}
	typing := e.typing
	e.mu.Unlock()

	if typing != nil {
		typing.CancelTyping(key)
	}
	e.notify(Change{ChatID: key, Kind: ChangeMessages})

	return e.submit(ctx, correlationID)
}

// Retry resubmits a failed placeholder with its original correlation id.
func (e *Engine) Retry(ctx context.Context, correlationID string) (Item, error) {
	e.mu.Lock()
	p, ok := e.pending[correlationID]
	if !ok {
		e.mu.Unlock()
		return Item{}, apperror.NotFound("no failed message %s", correlationID)
	}
	key := e.resolveLocked(p.threadKey)
	item, ok := e.itemLocked(key, correlationID)
	if !ok {
		e.mu.Unlock()
		return Item{}, apperror.NotFound("no failed message %s", correlationID)
	}
	if item.Status != enum.MessageStatusFailed {
		out := *item
		e.mu.Unlock()
		return out, apperror.Validation("message %s is %s, not failed", correlationID, out.Status)
	}
	item.Status = enum.MessageStatusPending
	item.Err = nil
	e.mu.Unlock()

	e.notify(Change{ChatID: key, Kind: ChangeMessages})
	return e.submit(ctx, correlationID)
}

// submit runs the create call to completion even if ctx is cancelled, so no placeholder is
// left pending forever.
func (e *Engine) submit(ctx context.Context, correlationID string) (Item, error) {
	e.mu.Lock()
	p, ok := e.pending[correlationID]
	if !ok {
		e.mu.Unlock()
		return Item{}, apperror.NotFound("no pending message %s", correlationID)
	}
	request := req.SendMessageRequest{
		ReceiverID:    p.receiverID,
		StoreID:       p.storeID,
		Type:          p.kind,
		Text:          p.text,
		CorrelationID: correlationID,
	}
	if th, ok := e.threads[e.resolveLocked(p.threadKey)]; ok && !th.Draft {
		request.ChatID = th.ID
	}
	file := p.attachment()
	e.mu.Unlock()

	msg, err := e.gateway.Create(context.WithoutCancel(ctx), request, file)
	if err != nil {
		return e.fail(correlationID, err)
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = correlationID
	}
	return e.confirm(msg)
}

// confirm applies an authoritative create response. Replaying the same response is a no-op.
func (e *Engine) confirm(msg dto.Message) (Item, error) {
	e.mu.Lock()
	p, fresh := e.pending[msg.CorrelationID]
	var key string
	if fresh {
		key = e.resolveLocked(p.threadKey)
		delete(e.pending, msg.CorrelationID)
	} else {
		key = e.resolveLocked(msg.ChatID)
	}
	th, ok := e.threads[key]
	if !ok {
		th = newThread(msg.ChatID, msg.ReceiverID, "", false)
		e.threads[msg.ChatID] = th
	}
	previous := ""
	if th.Draft && msg.ChatID != "" {
		previous = th.ID
		e.rekeyLocked(th, msg.ChatID)
	}
	e.seq++
	item := *th.upsertConfirmed(msg, e.seq)
	relay := e.relay
	e.mu.Unlock()

	if previous != "" {
		e.notify(Change{ChatID: msg.ChatID, PreviousID: previous, Kind: ChangeRekeyed})
		if relay != nil {
			if err := relay.Join(msg.ChatID); err != nil {
				e.log.WithError(err).Warnf("Failed to join room of new chat %s", msg.ChatID)
			}
		}
	}
	e.notify(Change{ChatID: msg.ChatID, Kind: ChangeMessages})
	if fresh {
		e.emit(dto.EventMessageNew, msg)
	}
	return item, nil
}

func (e *Engine) fail(correlationID string, cause error) (Item, error) {
	e.mu.Lock()
	p, ok := e.pending[correlationID]
	if !ok {
		e.mu.Unlock()
		return Item{}, cause
	}
	key := e.resolveLocked(p.threadKey)
	item, ok := e.itemLocked(key, correlationID)
	if !ok {
		// a page load already showed the persisted message
		delete(e.pending, correlationID)
		e.mu.Unlock()
		return Item{}, cause
	}
	item.Status = enum.MessageStatusFailed
	item.Err = cause
	out := *item
	e.mu.Unlock()

	e.log.WithError(cause).Warnf("Message %s failed in chat %s", correlationID, key)
	e.notify(Change{ChatID: key, Kind: ChangeMessages})
	return out, cause
}

// Edit replaces the text optimistically and rolls back to the previous content on failure.
func (e *Engine) Edit(ctx context.Context, messageID, text string) (Item, error) {
	if strings.TrimSpace(text) == "" {
		return Item{}, apperror.Validation("text is required")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return Item{}, apperror.Validation("text exceeds %d characters", maxTextLength)
	}

	e.mu.Lock()
	th, item, ok := e.locateLocked(messageID)
	if !ok {
		e.mu.Unlock()
		return Item{}, apperror.NotFound("message %s not found", messageID)
	}
	if err := e.checkMutableLocked(item, "edit"); err != nil {
		e.mu.Unlock()
		return Item{}, err
	}
	if item.Type != enum.MessageTypeText {
		e.mu.Unlock()
		return Item{}, apperror.Validation("only text messages can be edited")
	}
	before := item.Message
	item.Text = text
	item.Edited = true
	chatID := th.ID
	e.mu.Unlock()
	e.notify(Change{ChatID: chatID, Kind: ChangeMessages})

	msg, err := e.gateway.Edit(context.WithoutCancel(ctx), messageID, text)

	e.mu.Lock()
	_, current, found := e.locateLocked(messageID)
	var out Item
	if err != nil {
		if found && current.Text == text {
			current.Message = before
		}
	} else if found {
		current.Message = msg
	}
	if found {
		out = *current
	}
	e.mu.Unlock()
	e.notify(Change{ChatID: chatID, Kind: ChangeMessages})

	if err != nil {
		e.log.WithError(err).Warnf("Edit of message %s rolled back", messageID)
		return out, err
	}
	e.emit(dto.EventMessageUpdate, msg)
	return out, nil
}

// Delete removes the message from the local view first and never restores it. A failed
// placeholder is simply discarded without a network call.
func (e *Engine) Delete(ctx context.Context, messageID string) error {
	e.mu.Lock()
	th, item, ok := e.locateLocked(messageID)
	if !ok {
		e.mu.Unlock()
		return apperror.NotFound("message %s not found", messageID)
	}
	chatID := th.ID
	switch item.Status {
	case enum.MessageStatusFailed:
		delete(th.items, messageID)
		delete(e.pending, messageID)
		e.mu.Unlock()
		e.notify(Change{ChatID: chatID, Kind: ChangeMessages})
		return nil
	case enum.MessageStatusPending:
		e.mu.Unlock()
		return apperror.Validation("message %s is still being sent", messageID)
	}
	if err := e.checkMutableLocked(item, "delete"); err != nil {
		e.mu.Unlock()
		return err
	}
	delete(th.items, messageID)
	e.mu.Unlock()
	e.notify(Change{ChatID: chatID, Kind: ChangeMessages})

	if err := e.gateway.Delete(context.WithoutCancel(ctx), messageID); err != nil {
		e.log.WithError(err).Warnf("Delete of message %s failed on the server", messageID)
		return err
	}
	e.emit(dto.EventMessageDelete, dto.DeletePayload{MessageID: messageID, ChatID: chatID})
	return nil
}

// LoadOlder fetches the next older page of chatID and merges it by message id. It reports
// whether more history remains.
func (e *Engine) LoadOlder(ctx context.Context, chatID string) (bool, error) {
	e.mu.Lock()
	key := e.resolveLocked(chatID)
	th, ok := e.threads[key]
	if !ok {
		th = newThread(key, "", "", strings.HasPrefix(key, draftPrefix))
		e.threads[key] = th
	}
	if th.Draft || (th.Loaded && !th.HasMore) {
		e.mu.Unlock()
		return false, nil
	}
	skip := th.nextCursor
	e.mu.Unlock()

	page, err := e.gateway.Paginate(ctx, key, skip, e.pageSize)
	if err != nil {
		return true, err
	}

	e.mu.Lock()
	th = e.threads[e.resolveLocked(key)]
	for _, msg := range page.Messages {
		e.seq++
		th.upsertConfirmed(msg, e.seq)
		if th.CounterpartID == "" {
			th.CounterpartID = e.other(msg)
		}
	}
	th.Loaded = true
	if page.NextCursor != nil {
		th.nextCursor = *page.NextCursor
		th.HasMore = true
	} else {
		th.HasMore = false
	}
	more := th.HasMore
	e.mu.Unlock()

	e.notify(Change{ChatID: key, Kind: ChangeMessages})
	return more, nil
}

// Open joins the chat room, loads the first page if needed and marks everything loaded and
// addressed to the viewer as seen.
func (e *Engine) Open(ctx context.Context, chatID string) error {
	e.mu.Lock()
	key := e.resolveLocked(chatID)
	th, ok := e.threads[key]
	draft := strings.HasPrefix(key, draftPrefix) || (ok && th.Draft)
	loaded := ok && th.Loaded
	relay := e.relay
	e.mu.Unlock()
	if draft {
		return nil
	}

	if relay != nil {
		if err := relay.Join(key); err != nil {
			e.log.WithError(err).Warnf("Failed to join room %s", key)
		}
	}
	if !loaded {
		if _, err := e.LoadOlder(ctx, key); err != nil {
			return err
		}
	}
	return e.markSeen(ctx, key, nil)
}

// MarkVisible is called when messages scroll into view. Only those ids can trigger the receipt.
func (e *Engine) MarkVisible(ctx context.Context, chatID string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	e.mu.Lock()
	key := e.resolveLocked(chatID)
	e.mu.Unlock()
	return e.markSeen(ctx, key, messageIDs)
}

func (e *Engine) markSeen(ctx context.Context, chatID string, only []string) error {
	visible := make(map[string]struct{}, len(only))
	for _, id := range only {
		visible[id] = struct{}{}
	}

	e.mu.Lock()
	th, ok := e.threads[chatID]
	needed := false
	if ok {
		for _, item := range th.items {
			if !e.unseenForMe(item) {
				continue
			}
			if _, in := visible[item.ID]; only == nil || in {
				needed = true
				break
			}
		}
	}
	e.mu.Unlock()
	if !needed {
		return nil
	}

	if _, err := e.gateway.MarkSeen(ctx, chatID); err != nil {
		return err
	}

	e.mu.Lock()
	if th, ok := e.threads[e.resolveLocked(chatID)]; ok {
		// the gateway flips every message addressed to the viewer in the chat
		for _, item := range th.items {
			if e.unseenForMe(item) {
				item.Seen = true
			}
		}
	}
	e.mu.Unlock()

	e.notify(Change{ChatID: chatID, Kind: ChangeMessages})
	e.emit(dto.EventMessageSeen, dto.SeenPayload{ChatID: chatID, UserID: e.userID})
	return nil
}

// HandleEvent applies an event relayed from the other participant. It reports whether local
// state changed.
func (e *Engine) HandleEvent(env dto.Envelope) bool {
	switch env.Event {
	case dto.EventMessageNew:
		var msg dto.Message
		if json.Unmarshal(env.Data, &msg) != nil || msg.ID == "" || msg.ChatID == "" {
			return false
		}
		// the sender's view comes from the gateway response, never from its own echo
		if msg.SenderID == e.userID {
			return false
		}
		e.mu.Lock()
		key := e.resolveLocked(msg.ChatID)
		th, ok := e.threads[key]
		if !ok {
			th = newThread(msg.ChatID, msg.SenderID, "", false)
			e.threads[msg.ChatID] = th
			key = msg.ChatID
		}
		if th.CounterpartID == "" {
			th.CounterpartID = msg.SenderID
		}
		e.seq++
		th.upsertConfirmed(msg, e.seq)
		e.mu.Unlock()
		e.notify(Change{ChatID: key, Kind: ChangeMessages})
		return true

	case dto.EventMessageUpdate:
		var msg dto.Message
		if json.Unmarshal(env.Data, &msg) != nil || msg.SenderID == e.userID {
			return false
		}
		e.mu.Lock()
		key := e.resolveLocked(msg.ChatID)
		item, ok := e.itemLocked(key, msg.ID)
		if ok {
			item.Message = msg
		}
		e.mu.Unlock()
		if ok {
			e.notify(Change{ChatID: key, Kind: ChangeMessages})
		}
		return ok

	case dto.EventMessageDelete:
		var payload dto.DeletePayload
		if json.Unmarshal(env.Data, &payload) != nil {
			return false
		}
		e.mu.Lock()
		key := e.resolveLocked(payload.ChatID)
		th, ok := e.threads[key]
		if ok {
			_, ok = th.items[payload.MessageID]
			delete(th.items, payload.MessageID)
		}
		e.mu.Unlock()
		if ok {
			e.notify(Change{ChatID: key, Kind: ChangeMessages})
		}
		return ok

	case dto.EventMessageSeen:
		var payload dto.SeenPayload
		if json.Unmarshal(env.Data, &payload) != nil || payload.UserID == e.userID {
			return false
		}
		e.mu.Lock()
		key := e.resolveLocked(payload.ChatID)
		changed := false
		if th, ok := e.threads[key]; ok {
			for _, item := range th.items {
				if item.Status == enum.MessageStatusConfirmed && item.SenderID == e.userID &&
					item.ReceiverID == payload.UserID && !item.Seen {
					item.Seen = true
					changed = true
				}
			}
		}
		e.mu.Unlock()
		if changed {
			e.notify(Change{ChatID: key, Kind: ChangeMessages})
		}
		return changed
	}
	return false
}

// Messages returns the thread in display order. Draft keys keep working after the thread is re-keyed.
func (e *Engine) Messages(chatID string) []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	th, ok := e.threads[e.resolveLocked(chatID)]
	if !ok {
		return nil
	}
	return th.sorted()
}

func (e *Engine) Thread(chatID string) (ThreadInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	th, ok := e.threads[e.resolveLocked(chatID)]
	if !ok {
		return ThreadInfo{}, false
	}
	return th.ThreadInfo, true
}

func (e *Engine) validate(d Draft) error {
	if !d.Type.Valid() {
		return apperror.Validation("unknown message type %q", d.Type)
	}
	if d.ChatID == "" && d.ReceiverID == "" {
		return apperror.Validation("receiver is required to start a conversation")
	}
	if d.ReceiverID != "" && d.ReceiverID == e.userID {
		return apperror.Validation("cannot send a message to yourself")
	}
	if !d.Type.IsFile() {
		if strings.TrimSpace(d.Text) == "" {
			return apperror.Validation("text is required")
		}
		if utf8.RuneCountInString(d.Text) > maxTextLength {
			return apperror.Validation("text exceeds %d characters", maxTextLength)
		}
		if d.Attachment != nil {
			return apperror.Validation("a text message cannot carry a file")
		}
		return nil
	}
	if d.Attachment == nil || d.Attachment.Reader == nil {
		return apperror.Validation("a %s message requires a file", d.Type)
	}
	if d.Text != "" {
		return apperror.Validation("a %s message cannot carry text", d.Type)
	}
	if err := e.policy.CheckSize(d.Type, d.Attachment.Size); err != nil {
		return apperror.Validation("attachment rejected: %v", err)
	}
	return nil
}

func (e *Engine) checkMutableLocked(item *Item, action string) error {
	if item.Status != enum.MessageStatusConfirmed {
		return apperror.Validation("message %s is not confirmed yet", item.Key())
	}
	if item.SenderID != e.userID {
		return apperror.Forbidden("only the sender can %s a message", action)
	}
	if !mutable(item.CreatedAt, e.now(), e.window) {
		return apperror.Forbidden("messages can only be changed within %s of sending", e.window)
	}
	return nil
}

func (e *Engine) unseenForMe(item *Item) bool {
	return item.Status == enum.MessageStatusConfirmed && item.ReceiverID == e.userID && !item.Seen
}

func (e *Engine) other(msg dto.Message) string {
	if msg.SenderID == e.userID {
		return msg.ReceiverID
	}
	return msg.SenderID
}

func (e *Engine) resolveLocked(key string) string {
	if id, ok := e.aliases[key]; ok {
		return id
	}
	return key
}

func (e *Engine) itemLocked(key, id string) (*Item, bool) {
	th, ok := e.threads[key]
	if !ok {
		return nil, false
	}
	return th.find(id)
}

func (e *Engine) locateLocked(id string) (*thread, *Item, bool) {
	for _, th := range e.threads {
		if item, ok := th.find(id); ok {
			return th, item, true
		}
	}
	return nil, nil, false
}

// rekeyLocked moves a draft thread under its server id, merging whatever a relay or listing
// already stored there, and leaves an alias so late results for the draft key still resolve.
func (e *Engine) rekeyLocked(th *thread, realID string) {
	draftKey := th.ID
	if existing, ok := e.threads[realID]; ok && existing != th {
		for key, item := range existing.items {
			if _, dup := th.items[key]; !dup {
				th.items[key] = item
			}
		}
		th.Loaded = existing.Loaded
		th.HasMore = existing.HasMore
		th.nextCursor = existing.nextCursor
	} else {
		th.HasMore = true
	}
	delete(e.threads, draftKey)
	th.ID = realID
	th.Draft = false
	for _, item := range th.items {
		item.ChatID = realID
	}
	e.threads[realID] = th
	e.aliases[draftKey] = realID
}

func (e *Engine) emit(event string, payload any) {
	e.mu.Lock()
	relay := e.relay
	e.mu.Unlock()
	if relay == nil {
		return
	}
	if err := relay.Emit(event, payload); err != nil {
		e.log.WithError(err).Warnf("Failed to relay %s", event)
	}
}

func (e *Engine) notify(c Change) {
	e.subMu.Lock()
	subs := make([]func(Change), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}
