// Package client talks to a Hearth server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/hearth/internal/briefing"
	"github.com/dukerupert/hearth/internal/model"
)

// Collection paths under /api, one per record kind.
const (
	Documents         = "documents"
	Assets            = "assets"
	Bills             = "bills"
	Health            = "health"
	Vehicles          = "vehicles"
	Properties        = "properties"
	Subscriptions     = "subscriptions"
	EmergencyContacts = "emergency-contacts"
)

// Collections lists every record collection.
var Collections = []string{Documents, Assets, Bills, Health, Vehicles, Properties, Subscriptions, EmergencyContacts}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Session is the caller as the server describes it after sign-in.
type Session struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Role          string     `json:"role"`
	Avatar        string     `json:"avatar"`
	HouseholdID   string     `json:"householdId"`
	HouseholdName string     `json:"householdName"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type RegisterRequest struct {
	HouseholdName string `json:"householdName"`
	HousePassword string `json:"housePassword"`
	AdminName     string `json:"adminName"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Avatar        string `json:"avatar,omitempty"`
}

type JoinRequest struct {
	HouseholdName string `json:"householdName"`
	HousePassword string `json:"housePassword"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Avatar        string `json:"avatar,omitempty"`
}

type JoinInviteRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

// Invitation is a freshly generated invite code.
type Invitation struct {
	model.Invitation
	EmailSent bool `json:"emailSent"`
}

// Hit is one search result. Record holds the full record JSON.
type Hit struct {
	Kind   string
	ID     string
	Label  string
	Record json.RawMessage
}

func (h *Hit) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind   string `json:"kind"`
		ID     string `json:"id"`
		Title  string `json:"title"`
		Name   string `json:"name"`
		Number string `json:"number"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	h.Kind = head.Kind
	h.ID = head.ID
	h.Record = append(json.RawMessage(nil), data...)
	switch {
	case head.Title != "":
		h.Label = head.Title
	case head.Name != "":
		h.Label = head.Name
	default:
		h.Label = head.Number
	}
	return nil
}

// Client is safe for concurrent use. The token is set by the sign-in calls
// or SetToken.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// send performs req and returns the response if its status is 2xx.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return nil, apiErr
}

// do sends in as JSON (when non-nil) and decodes the answer into out (when
// non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) signIn(ctx context.Context, path string, in any) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, path, in, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

func (c *Client) RegisterHousehold(ctx context.Context, req RegisterRequest) (*Session, error) {
	return c.signIn(ctx, "/api/auth/register-household", req)
}

func (c *Client) JoinHousehold(ctx context.Context, req JoinRequest) (*Session, error) {
	return c.signIn(ctx, "/api/auth/join-household", req)
}

func (c *Client) JoinInvite(ctx context.Context, req JoinInviteRequest) (*Session, error) {
	return c.signIn(ctx, "/api/join-invite", req)
}

func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	return c.signIn(ctx, "/api/auth/login", map[string]string{"username": username, "password": password})
}

func (c *Client) Me(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Data fetches the caller's full household snapshot.
func (c *Client) Data(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/data", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Alerts(ctx context.Context) ([]briefing.Alert, error) {
	var alerts []briefing.Alert
	if err := c.do(ctx, http.MethodGet, "/api/alerts", nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]Hit, error) {
	var hits []Hit
	if err := c.do(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(query), nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func collectionPath(collection string, id ...string) string {
	p := "/api/" + collection
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// List decodes every record of a collection into out, a pointer to a slice.
func (c *Client) List(ctx context.Context, collection string, out any) error {
	return c.do(ctx, http.MethodGet, collectionPath(collection), nil, out)
}

// Create posts rec to a collection and decodes the stored record into out,
// which may be nil.
func (c *Client) Create(ctx context.Context, collection string, rec, out any) error {
	return c.do(ctx, http.MethodPost, collectionPath(collection), rec, out)
}

func (c *Client) Get(ctx context.Context, collection, id string, out any) error {
	return c.do(ctx, http.MethodGet, collectionPath(collection, id), nil, out)
}

func (c *Client) Update(ctx context.Context, collection, id string, rec, out any) error {
	return c.do(ctx, http.MethodPut, collectionPath(collection, id), rec, out)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, collectionPath(collection, id), nil, nil)
}

func (c *Client) AppendService(ctx context.Context, assetID string, entry model.ServiceEntry) (*model.Asset, error) {
	var a model.Asset
	if err := c.do(ctx, http.MethodPost, collectionPath(Assets, assetID, "service"), entry, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UploadFile replaces a document's attachment with the contents of r.
func (c *Client) UploadFile(ctx context.Context, documentID, contentType string, r io.Reader) (*model.Document, error) {
	req, err := c.newRequest(ctx, http.MethodPut, collectionPath(Documents, documentID, "file"), r)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc model.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &doc, nil
}

// DownloadFile streams a document's attachment. The caller closes it.
func (c *Client) DownloadFile(ctx context.Context, documentID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, collectionPath(Documents, documentID, "file"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CreateInvitation generates an invite code. A non-empty email also has the
// server mail it.
func (c *Client) CreateInvitation(ctx context.Context, email string) (*Invitation, error) {
	var in any
	if email != "" {
		in = map[string]string{"email": email}
	}
	var inv Invitation
	if err := c.do(ctx, http.MethodPost, "/api/invitations", in, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Export returns the household encrypted under passphrase.
func (c *Client) Export(ctx context.Context, passphrase string) ([]byte, error) {
	data, err := json.Marshal(map[string]string{"passphrase": passphrase})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/export", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return out, nil
}

func (c *Client) CreateBackup(ctx context.Context, passphrase string) (*model.Backup, error) {
	var b model.Backup
	if err := c.do(ctx, http.MethodPost, "/api/backups", map[string]string{"passphrase": passphrase}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) ListBackups(ctx context.Context) ([]model.Backup, error) {
	var backups []model.Backup
	if err := c.do(ctx, http.MethodGet, "/api/backups", nil, &backups); err != nil {
		return nil, err
	}
	return backups, nil
}
