package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/connector"
	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub owns the set of live WS clients and the single bus subscription
// that feeds them. Fan-out to a client goes through its Outbox, so a
// slow client drops its own stream chunks instead of stalling anyone.
type hub struct {
	env *environment.Environment
	cfg Config

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub(env *environment.Environment, cfg Config) *hub {
	h := &hub{env: env, cfg: cfg, clients: make(map[*wsClient]struct{})}
	env.Bus.SubscribeAll(h.onBusEvent)
	return h
}

type wsClient struct {
	hub    *hub
	conn   *websocket.Conn
	outbox *connector.Outbox

	mu     sync.Mutex
	active map[string]string // po name -> session id set via switch_session
}

func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	c := &wsClient{
		hub:    h,
		conn:   conn,
		outbox: connector.NewOutbox(h.cfg.OutboxSoftCap),
		active: make(map[string]string),
	}

	// Snapshot before live events: the full state of every PO, then
	// every pending notification, queued before the client joins the
	// hub so no live event can slip in ahead of it. Events published
	// during this window are served by the catch-up query instead.
	c.sendSnapshot()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.env.Metrics != nil {
		h.env.Metrics.BusSubscriberCount.Set(float64(h.env.Bus.SubscriberCount()))
	}

	go c.writeLoop()
	c.readLoop()

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.outbox.Close()
	_ = conn.Close()
}

// onBusEvent translates one bus event into an outbound envelope and
// fans it out to every client. Only stream chunks are droppable.
func (h *hub) onBusEvent(e bus.Event) {
	env, droppable := envelopeFor(e)
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.outbox.Push(env, e.SessionID, droppable)
	}
}

// envelopeFor maps bus event kinds onto the WS vocabulary. The second
// return marks the frame droppable under back-pressure.
func envelopeFor(e bus.Event) (connector.Envelope, bool) {
	base := map[string]any{
		"session_id": e.SessionID,
		"created_at": e.CreatedAt,
	}
	for k, v := range e.Extra {
		base[k] = v
	}
	switch e.Kind {
	case bus.KindStreamChunk:
		base["chunk"] = e.Content
		return connector.NewEnvelope("stream", base), true
	case bus.KindStreamEnd:
		return connector.NewEnvelope("stream_end", base), false
	case bus.KindStatus:
		return connector.NewEnvelope("po_state", base), false
	case bus.KindNotification:
		base["question"] = e.Content
		return connector.NewEnvelope("notification", base), false
	case bus.KindNotificationResolved:
		base["response"] = e.Content
		return connector.NewEnvelope("notification_resolved", base), false
	case bus.KindEnvDataChange:
		return connector.NewEnvelope("env_data_change", base), false
	default:
		base["kind"] = string(e.Kind)
		base["summary"] = e.Summary
		base["content"] = e.Content
		return connector.NewEnvelope("bus_message", base), false
	}
}

// sendSnapshot queues the connect-time state: po_state for every PO,
// then the pending notification list.
func (c *wsClient) sendSnapshot() {
	for _, po := range c.hub.env.Registry.List(capability.KindPromptObj) {
		var body, path string
		var caps []string
		if b, ok := po.(poBacking); ok {
			body, path = b.Body(), b.Path()
			caps = b.Frontmatter().Capabilities
		}
		c.outbox.Push(connector.NewEnvelope("po_state", map[string]any{
			"name":         po.Name(),
			"description":  po.Description(),
			"capabilities": caps,
			"body":         body,
			"path":         path,
			"status":       "idle",
		}), "", false)
	}
	for _, req := range c.hub.env.Queue.Pending("") {
		c.outbox.Push(connector.NewEnvelope("notification", map[string]any{
			"request_id": req.ID,
			"po_name":    req.PONname,
			"question":   req.Question,
			"options":    req.Options,
			"created_at": req.CreatedAt,
		}), "", false)
	}
}

func (c *wsClient) writeLoop() {
	for {
		env, ok := c.outbox.Next()
		if !ok {
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
		if err := c.conn.WriteJSON(env); err != nil {
			_ = c.conn.Close()
			return
		}
	}
}

func (c *wsClient) readLoop() {
	for {
		var env connector.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "error", err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *wsClient) sendError(msg string) {
	c.outbox.Push(connector.NewEnvelope("error", map[string]string{"message": msg}), "", false)
}

func (c *wsClient) reply(typ string, payload any) {
	c.outbox.Push(connector.NewEnvelope(typ, payload), "", false)
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// dispatch routes one inbound command. Unknown types are answered with
// an error envelope rather than dropped, so a client author finds out.
func (c *wsClient) dispatch(env connector.Envelope) {
	switch env.Type {
	case "send_message":
		c.handleSendMessage(env.Payload)
	case "respond_to_notification":
		c.handleRespondToNotification(env.Payload)
	case "update_po", "update_prompt":
		c.handleUpdatePO(env.Payload, env.Type == "update_prompt")
	case "create_session", "create_thread":
		c.handleCreateSession(env.Payload)
	case "switch_session":
		c.handleSwitchSession(env.Payload)
	case "get_session_usage":
		c.handleGetSessionUsage(env.Payload)
	case "export_thread":
		c.handleExportThread(env.Payload)
	case "switch_llm":
		c.handleSwitchLLM(env.Payload)
	case "request_env_data":
		c.handleRequestEnvData(env.Payload)
	default:
		c.sendError("unknown command type: " + env.Type)
	}
}

func (c *wsClient) handleSendMessage(raw json.RawMessage) {
	p, err := decodePayload[struct {
		POName    string `json:"po_name"`
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}](raw)
	if err != nil {
		c.sendError("send_message: " + err.Error())
		return
	}
	if p.SessionID == "" {
		c.mu.Lock()
		p.SessionID = c.active[p.POName]
		c.mu.Unlock()
	}
	// The turn may block on the LLM, on delegation, or on ask_human;
	// run it off the read loop so the client can keep issuing commands.
	go func() {
		ctx := capability.Context{
			Ctx:       context.Background(),
			SessionID: p.SessionID,
			Source:    connector.SourceWeb,
		}
		target, ok := c.hub.env.Registry.Get(p.POName)
		if !ok || target.Kind() != capability.KindPromptObj {
			c.sendError("prompt object not found: " + p.POName)
			return
		}
		if _, err := target.Receive(ctx, capability.NewTextMessage(p.Message)); err != nil {
			c.sendError(humanMessage(err))
		}
	}()
}

func (c *wsClient) handleRespondToNotification(raw json.RawMessage) {
	p, err := decodePayload[struct {
		RequestID string `json:"request_id"`
		Response  string `json:"response"`
		Cancel    bool   `json:"cancel"`
	}](raw)
	if err != nil {
		c.sendError("respond_to_notification: " + err.Error())
		return
	}
	if p.Cancel {
		err = c.hub.env.Queue.Cancel(p.RequestID)
	} else {
		err = c.hub.env.Queue.Respond(p.RequestID, p.Response)
	}
	if err != nil {
		c.sendError(humanMessage(err))
	}
}

func (c *wsClient) handleUpdatePO(raw json.RawMessage, bodyOnly bool) {
	p, err := decodePayload[struct {
		Name         string   `json:"name"`
		Description  *string  `json:"description"`
		Capabilities []string `json:"capabilities"`
		Body         *string  `json:"body"`
	}](raw)
	if err != nil {
		c.sendError("update_po: " + err.Error())
		return
	}
	target, ok := c.hub.env.Registry.Get(p.Name)
	if !ok {
		c.sendError("prompt object not found: " + p.Name)
		return
	}
	po, ok := target.(poBacking)
	if !ok {
		c.sendError(p.Name + " is not a prompt object")
		return
	}
	fm := po.Frontmatter()
	body := po.Body()
	if p.Body != nil {
		body = *p.Body
	}
	if !bodyOnly {
		if p.Description != nil {
			fm.Description = *p.Description
		}
		if p.Capabilities != nil {
			fm.Capabilities = p.Capabilities
		}
	}
	if err := loader.WritePromptObject(po.Path(), fm, body); err != nil {
		c.sendError(humanMessage(err))
		return
	}
	if err := c.hub.env.ReloadPO(po.Path()); err != nil {
		c.sendError(humanMessage(err))
		return
	}
	c.reply("po_state", map[string]any{
		"name":         fm.Name,
		"description":  fm.Description,
		"capabilities": fm.Capabilities,
		"body":         body,
		"path":         po.Path(),
	})
}

func (c *wsClient) handleCreateSession(raw json.RawMessage) {
	p, err := decodePayload[struct {
		POName          string `json:"po_name"`
		Name            string `json:"name"`
		ParentSessionID string `json:"parent_session_id"`
		ThreadType      string `json:"thread_type"`
	}](raw)
	if err != nil {
		c.sendError("create_session: " + err.Error())
		return
	}
	if !c.hub.env.Registry.Has(p.POName) {
		c.sendError("prompt object not found: " + p.POName)
		return
	}
	sess := storeSession(p.POName, p.Name, p.ParentSessionID, p.ThreadType)
	created, err := c.hub.env.Store.CreateSession(sess)
	if err != nil {
		c.sendError(humanMessage(err))
		return
	}
	c.mu.Lock()
	c.active[p.POName] = created.ID
	c.mu.Unlock()
	c.reply("po_state", map[string]any{"name": p.POName, "active_session": created.ID, "session": created})
}

func (c *wsClient) handleSwitchSession(raw json.RawMessage) {
	p, err := decodePayload[struct {
		POName    string `json:"po_name"`
		SessionID string `json:"session_id"`
	}](raw)
	if err != nil {
		c.sendError("switch_session: " + err.Error())
		return
	}
	sess, ok, err := c.hub.env.Store.GetSession(p.SessionID)
	if err != nil {
		c.sendError(humanMessage(err))
		return
	}
	if !ok {
		c.sendError("session not found: " + p.SessionID)
		return
	}
	poName := p.POName
	if poName == "" {
		poName = sess.PONname
	}
	c.mu.Lock()
	c.active[poName] = sess.ID
	c.mu.Unlock()
	c.reply("po_state", map[string]any{"name": poName, "active_session": sess.ID, "session": sess})
}

func (c *wsClient) handleGetSessionUsage(raw json.RawMessage) {
	p, err := decodePayload[struct {
		SessionID string `json:"session_id"`
		Tree      bool   `json:"tree"`
	}](raw)
	if err != nil {
		c.sendError("get_session_usage: " + err.Error())
		return
	}
	var totals any
	if p.Tree {
		totals, err = c.hub.env.Store.ThreadTreeUsage(p.SessionID)
	} else {
		totals, err = c.hub.env.Store.SessionUsage(p.SessionID)
	}
	if err != nil {
		c.sendError(humanMessage(err))
		return
	}
	c.reply("session_usage", map[string]any{"session_id": p.SessionID, "tree": p.Tree, "usage": totals})
}

func (c *wsClient) handleExportThread(raw json.RawMessage) {
	p, err := decodePayload[struct {
		SessionID string `json:"session_id"`
		Format    string `json:"format"`
		Tree      bool   `json:"tree"`
	}](raw)
	if err != nil {
		c.sendError("export_thread: " + err.Error())
		return
	}
	var payload map[string]any
	switch {
	case p.Tree && p.Format == "json":
		tree, err := c.hub.env.Store.ExportThreadTreeJSON(p.SessionID)
		if err != nil {
			c.sendError(humanMessage(err))
			return
		}
		payload = map[string]any{"format": "json", "tree": tree}
	case p.Tree:
		md, err := c.hub.env.Store.ExportThreadTreeMarkdown(p.SessionID)
		if err != nil {
			c.sendError(humanMessage(err))
			return
		}
		payload = map[string]any{"format": "markdown", "content": md}
	case p.Format == "json":
		exp, err := c.hub.env.Store.ExportSessionJSON(p.SessionID)
		if err != nil {
			c.sendError(humanMessage(err))
			return
		}
		payload = map[string]any{"format": "json", "session": exp}
	default:
		md, err := c.hub.env.Store.ExportSessionMarkdown(p.SessionID)
		if err != nil {
			c.sendError(humanMessage(err))
			return
		}
		payload = map[string]any{"format": "markdown", "content": md}
	}
	payload["session_id"] = p.SessionID
	c.reply("thread_export", payload)
}

func (c *wsClient) handleSwitchLLM(raw json.RawMessage) {
	p, err := decodePayload[struct {
		Provider string `json:"provider"`
	}](raw)
	if err != nil {
		c.sendError("switch_llm: " + err.Error())
		return
	}
	if err := c.hub.env.Models.SetActive(p.Provider); err != nil {
		c.sendError(humanMessage(err))
		return
	}
	c.reply("po_state", map[string]any{"active_provider": p.Provider})
}

func (c *wsClient) handleRequestEnvData(raw json.RawMessage) {
	p, err := decodePayload[struct {
		SessionID string `json:"session_id"`
		Key       string `json:"key"`
	}](raw)
	if err != nil {
		c.sendError("request_env_data: " + err.Error())
		return
	}
	root, err := c.hub.env.Store.ResolveRootThread(p.SessionID)
	if err != nil {
		c.sendError(humanMessage(err))
		return
	}
	if p.Key != "" {
		entry, ok, err := c.hub.env.Store.GetEnvData(root, p.Key)
		if err != nil {
			c.sendError(humanMessage(err))
			return
		}
		if !ok {
			c.sendError("no env data entry for key " + p.Key)
			return
		}
		c.reply("env_data_change", map[string]any{"root_thread_id": root, "entry": entry})
		return
	}
	entries, err := c.hub.env.Store.ListEnvData(root)
	if err != nil {
		c.sendError(humanMessage(err))
		return
	}
	c.reply("env_data_change", map[string]any{"root_thread_id": root, "entries": entries})
}

// storeSession builds the session row create_session/create_thread
// insert. An empty threadType with a parent means a fork.
func storeSession(poName, name, parentSessionID, threadType string) store.Session {
	tt := store.ThreadType(threadType)
	if parentSessionID == "" {
		tt = store.ThreadRoot
	} else if threadType == "" {
		tt = store.ThreadFork
	}
	return store.Session{
		PONname:         poName,
		Name:            name,
		Source:          connector.SourceWeb,
		ParentSessionID: parentSessionID,
		ThreadType:      tt,
	}
}

// humanMessage strips an internal error down to its message; raw
// stack traces never cross the socket.
func humanMessage(err error) string {
	var pe *poerr.Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
