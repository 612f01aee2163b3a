// Package api holds the example application mounted by volt-server: a
// status endpoint, an echo, a small item store, multipart uploads and
// snapshots, and a bridge that broadcasts HTTP input to WebSocket clients.
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voltlabs/volt/internal/logging"
	"github.com/voltlabs/volt/internal/version"
	"github.com/voltlabs/volt/internal/web"
	"go.uber.org/zap"
)

// Route error codes returned to clients in the 403 body.
const (
	CodeInvalidItem    = 1
	CodeItemNotFound   = 2
	CodeNotMultipart   = 3
	CodeUploadFailed   = 4
	CodeNoBroadcaster  = 5
	CodeEmptyBroadcast = 6
)

const maxBroadcastPreview = 40

// Broadcaster delivers text to connected WebSocket clients.
type Broadcaster interface {
	BroadcastMessage(text string)
	Connections() int
}

// Options configures the API.
type Options struct {
	// UploadDir receives uploaded files. Defaults to a volt-uploads
	// directory under the system temp dir.
	UploadDir string

	// Broadcaster is optional; without it /broadcast is rejected.
	Broadcaster Broadcaster
}

// API is the example application.
type API struct {
	uploadDir   string
	broadcaster Broadcaster
	items       *ItemStore
	started     time.Time
	log         *zap.Logger

	mu         sync.Mutex
	lastUpload *Upload
}

// Upload describes one stored file.
type Upload struct {
	Field    string `json:"field"`
	FileName string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// Status is the body of GET /status.
type Status struct {
	Version          string `json:"version"`
	Uptime           string `json:"uptime"`
	Items            int    `json:"items"`
	WebSocketClients int    `json:"websocket_clients"`
}

type itemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// New creates the API.
func New(opts Options) *API {
	dir := opts.UploadDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "volt-uploads")
	}
	return &API{
		uploadDir:   dir,
		broadcaster: opts.Broadcaster,
		items:       NewItemStore(),
		started:     time.Now(),
		log:         logging.Named("api"),
	}
}

// Items exposes the item store.
func (a *API) Items() *ItemStore {
	return a.items
}

// Register mounts every route on rt.
func (a *API) Register(rt *web.Router) {
	rt.Get("/status", a.status)
	rt.Post("/echo", a.echo)
	rt.Get("/items", a.listItems)
	rt.Post("/items", a.createItem)
	rt.Get("/items/:id", a.getItem)
	rt.Put("/items/:id", a.updateItem)
	rt.Delete("/items/:id", a.deleteItem)
	rt.Post("/upload", a.upload)
	rt.Get("/snapshot", a.snapshot)
	rt.Post("/broadcast", a.broadcast)
}

func (a *API) currentStatus() Status {
	clients := 0
	if a.broadcaster != nil {
		clients = a.broadcaster.Connections()
	}
	return Status{
		Version:          version.Version,
		Uptime:           time.Since(a.started).Round(time.Second).String(),
		Items:            a.items.Len(),
		WebSocketClients: clients,
	}
}

func (a *API) status(ctx context.Context, req *web.Request, resp *web.Response) error {
	return resp.SendJSON(a.currentStatus(), web.StatusOK)
}

func (a *API) echo(ctx context.Context, req *web.Request, resp *web.Response) error {
	body, err := req.Body()
	if err != nil {
		return err
	}
	if strings.HasPrefix(req.Header.Get("Content-Type"), web.ContentTypeJSON.Value) {
		return resp.SendBytes(web.ContentTypeJSON, body, web.StatusOK)
	}
	return resp.SendText(string(body), web.StatusOK)
}

func (a *API) listItems(ctx context.Context, req *web.Request, resp *web.Response) error {
	items := a.items.List()
	if name := req.Args["name"]; name != "" {
		filtered := items[:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Name), strings.ToLower(name)) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	return resp.SendJSON(items, web.StatusOK)
}

func (a *API) createItem(ctx context.Context, req *web.Request, resp *web.Response) error {
	in, err := decodeItem(req)
	if err != nil {
		return err
	}
	it := a.items.Create(in.Name, in.Quantity)
	a.log.Info("Item created", zap.Int("id", it.ID), zap.String("name", it.Name))
	return resp.SendJSON(it, web.StatusCreated)
}

func (a *API) getItem(ctx context.Context, req *web.Request, resp *web.Response) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	it, ok := a.items.Get(id)
	if !ok {
		return web.NewRouteError(CodeItemNotFound, "item %d not found", id)
	}
	return resp.SendJSON(it, web.StatusOK)
}

func (a *API) updateItem(ctx context.Context, req *web.Request, resp *web.Response) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	in, err := decodeItem(req)
	if err != nil {
		return err
	}
	it, ok := a.items.Update(id, in.Name, in.Quantity)
	if !ok {
		return web.NewRouteError(CodeItemNotFound, "item %d not found", id)
	}
	return resp.SendJSON(it, web.StatusOK)
}

func (a *API) deleteItem(ctx context.Context, req *web.Request, resp *web.Response) error {
	id, err := itemID(req)
	if err != nil {
		return err
	}
	if !a.items.Delete(id) {
		return web.NewRouteError(CodeItemNotFound, "item %d not found", id)
	}
	return resp.SendEmpty(web.StatusNoContent)
}

func itemID(req *web.Request) (int, error) {
	id, err := strconv.Atoi(req.Params["id"])
	if err != nil || id <= 0 {
		return 0, web.NewRouteError(CodeInvalidItem, "invalid item id %q", req.Params["id"])
	}
	return id, nil
}

func decodeItem(req *web.Request) (itemRequest, error) {
	var in itemRequest
	if err := req.DecodeBody(&in); err != nil {
		return in, web.NewRouteError(CodeInvalidItem, "cannot decode item: %v", err)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, web.NewRouteError(CodeInvalidItem, "item name is required")
	}
	if in.Quantity < 0 {
		return in, web.NewRouteError(CodeInvalidItem, "quantity must not be negative")
	}
	return in, nil
}

// uploadResult is the body of POST /upload.
type uploadResult struct {
	Files  []Upload          `json:"files"`
	Fields map[string]string `json:"fields"`
}

func (a *API) upload(ctx context.Context, req *web.Request, resp *web.Response) error {
	if !req.IsMultipart() {
		return web.NewRouteError(CodeNotMultipart, "expected multipart/form-data")
	}
	if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
		return web.NewRouteError(CodeUploadFailed, "cannot create upload directory: %v", err)
	}

	result := uploadResult{Files: []Upload{}, Fields: map[string]string{}}
	for {
		part, err := req.NextPart()
		if err != nil {
			return err
		}
		if part == nil {
			break
		}

		if part.FileName() == "" {
			value, err := part.Bytes()
			if err != nil {
				return err
			}
			result.Fields[part.Name()] = string(value)
			continue
		}

		up, err := a.store(part)
		if err != nil {
			return err
		}
		result.Files = append(result.Files, up)
	}

	if n := len(result.Files); n > 0 {
		a.mu.Lock()
		a.lastUpload = &result.Files[n-1]
		a.mu.Unlock()
	}
	return resp.SendJSON(result, web.StatusCreated)
}

// store streams a file part to the upload directory.
func (a *API) store(part *web.Part) (Upload, error) {
	name := filepath.Base(filepath.Clean("/" + part.FileName()))
	if name == "/" || name == "." {
		return Upload{}, web.NewRouteError(CodeUploadFailed, "invalid file name %q", part.FileName())
	}
	path := filepath.Join(a.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return Upload{}, web.NewRouteError(CodeUploadFailed, "cannot create %s: %v", name, err)
	}

	var written int64
	err = part.Body(f, func(chunk []byte) { written += int64(len(chunk)) })
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Upload{}, fmt.Errorf("storing %s: %w", name, err)
	}

	a.log.Info("File uploaded",
		zap.String("field", part.Name()),
		zap.String("path", path),
		zap.Int64("size", written),
	)
	return Upload{Field: part.Name(), FileName: name, Path: path, Size: written}, nil
}

func (a *API) snapshot(ctx context.Context, req *web.Request, resp *web.Response) error {
	a.mu.Lock()
	last := a.lastUpload
	a.mu.Unlock()

	var file []byte
	if last != nil {
		data, err := os.ReadFile(last.Path)
		if err != nil {
			a.log.Warn("Last upload unreadable", zap.String("path", last.Path), zap.Error(err))
		} else {
			file = data
		}
	}

	return resp.SendMultipart(func(m *web.MultipartWriter) error {
		if err := m.JSON(a.currentStatus()); err != nil {
			return err
		}
		if err := m.JSON(a.items.List()); err != nil {
			return err
		}
		if file != nil {
			m.Text(last.FileName)
			m.Data(web.ContentTypeOctetStream, file)
		}
		return nil
	})
}

// broadcastResult is the body of POST /broadcast.
type broadcastResult struct {
	Clients int `json:"clients"`
	Bytes   int `json:"bytes"`
}

func (a *API) broadcast(ctx context.Context, req *web.Request, resp *web.Response) error {
	if a.broadcaster == nil {
		return web.NewRouteError(CodeNoBroadcaster, "websocket server is not running")
	}
	text, err := req.Text()
	if err != nil {
		return err
	}
	if text == "" {
		return web.NewRouteError(CodeEmptyBroadcast, "nothing to broadcast")
	}

	clients := a.broadcaster.Connections()
	a.broadcaster.BroadcastMessage(text)

	preview := text
	if len(preview) > maxBroadcastPreview {
		preview = preview[:maxBroadcastPreview]
	}
	a.log.Debug("Broadcast", zap.Int("clients", clients), zap.String("preview", preview))

	return resp.SendJSON(broadcastResult{Clients: clients, Bytes: len(text)}, web.StatusOK)
}
