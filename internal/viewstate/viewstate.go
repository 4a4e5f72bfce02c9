// Package viewstate holds what a Hearth client is showing: the active tab,
// member, search and modal, and the household snapshot behind them.
package viewstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/hearth/internal/briefing"
	"github.com/dukerupert/hearth/internal/client"
	"github.com/dukerupert/hearth/internal/model"
)

// API is the part of the Hearth API the controller depends on.
// *client.Client implements it.
type API interface {
	Data(ctx context.Context) (*model.Snapshot, error)
	Create(ctx context.Context, collection string, rec, out any) error
	Delete(ctx context.Context, collection, id string) error
}

type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabVault     Tab = "vault"
	TabAssets    Tab = "assets"
	TabFinance   Tab = "finance"
	TabWellness  Tab = "wellness"
)

var tabs = []Tab{TabDashboard, TabVault, TabAssets, TabFinance, TabWellness}

type Modal string

const (
	ModalNone     Modal = "none"
	ModalQuickAdd Modal = "quickAdd"
	ModalSOS      Modal = "sos"
)

// TravelTag marks documents kept in travel mode.
const TravelTag = "travel"

var (
	ErrNotLoaded     = errors.New("snapshot not loaded")
	ErrUnknownTab    = errors.New("unknown tab")
	ErrUnknownMember = errors.New("unknown member")
)

type Controller struct {
	mu     sync.RWMutex
	api    API
	userID string
	today  func() time.Time

	snap    *model.Snapshot
	tab     Tab
	active  string
	query   string
	modal   Modal
	addKind string
	travel  bool
}

// New returns a controller for the signed-in user userID. Call Load before
// reading any derived view.
func New(api API, userID string) *Controller {
	return &Controller{
		api:    api,
		userID: userID,
		today:  time.Now,
		tab:    TabDashboard,
		modal:  ModalNone,
	}
}

// Load re-fetches the snapshot. The first load picks the active member: the
// signed-in user when listed, otherwise the first member.
func (c *Controller) Load(ctx context.Context) error {
	snap, err := c.api.Data(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	if c.active == "" || !hasMember(snap, c.active) {
		c.active = ""
		if hasMember(snap, c.userID) {
			c.active = c.userID
		} else if len(snap.Users) > 0 {
			c.active = snap.Users[0].ID
		}
	}
	return nil
}

func hasMember(snap *model.Snapshot, id string) bool {
	return slices.ContainsFunc(snap.Users, func(m model.Member) bool { return m.ID == id })
}

// Snapshot returns the last loaded snapshot, or nil.
func (c *Controller) Snapshot() *model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Controller) Tab() Tab {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tab
}

func (c *Controller) SetTab(t Tab) error {
	if !slices.Contains(tabs, t) {
		return fmt.Errorf("%w %q", ErrUnknownTab, t)
	}
	c.mu.Lock()
	c.tab = t
	c.mu.Unlock()
	return nil
}

func (c *Controller) ActiveMember() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// SetActiveMember switches to a listed member. "family" is always listed.
func (c *Controller) SetActiveMember(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return ErrNotLoaded
	}
	if !hasMember(c.snap, id) {
		return fmt.Errorf("%w %q", ErrUnknownMember, id)
	}
	c.active = id
	return nil
}

func (c *Controller) Search() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query
}

func (c *Controller) SetSearch(q string) {
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
}

// Modal reports the open modal and, for quick add, the kind being added.
func (c *Controller) Modal() (Modal, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modal, c.addKind
}

// OpenQuickAdd opens the add modal. An empty kind shows the kind picker.
func (c *Controller) OpenQuickAdd(kind string) {
	c.mu.Lock()
	c.modal, c.addKind = ModalQuickAdd, kind
	c.mu.Unlock()
}

func (c *Controller) OpenSOS() {
	c.mu.Lock()
	c.modal, c.addKind = ModalSOS, ""
	c.mu.Unlock()
}

func (c *Controller) CloseModal() {
	c.mu.Lock()
	c.modal, c.addKind = ModalNone, ""
	c.mu.Unlock()
}

func (c *Controller) TravelMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.travel
}

func (c *Controller) SetTravelMode(on bool) {
	c.mu.Lock()
	c.travel = on
	c.mu.Unlock()
}

func (c *Controller) ToggleTravelMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.travel = !c.travel
	return c.travel
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Documents are those visible to the active member that match the search
// on title or type. Travel mode keeps only travel-tagged ones.
func (c *Controller) Documents() []model.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || c.active == "" {
		return []model.Document{}
	}
	out := []model.Document{}
	for _, d := range c.snap.Docs {
		visible := d.UserID == c.active || c.active == model.FamilyOwner || d.UserID == model.FamilyOwner
		if !visible {
			continue
		}
		if !containsFold(d.Title, c.query) && !containsFold(d.Type, c.query) {
			continue
		}
		if c.travel && !slices.Contains(d.Tags, TravelTag) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (c *Controller) Assets() []model.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []model.Asset{}
	if c.snap == nil {
		return out
	}
	for _, a := range c.snap.Assets {
		if containsFold(a.Title, c.query) {
			out = append(out, a)
		}
	}
	return out
}

func (c *Controller) Bills() []model.Bill {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []model.Bill{}
	if c.snap == nil {
		return out
	}
	for _, b := range c.snap.Bills {
		if containsFold(b.Title, c.query) {
			out = append(out, b)
		}
	}
	return out
}

// Health returns the active member's records, or every record when the
// family is active.
func (c *Controller) Health() []model.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []model.Health{}
	if c.snap == nil {
		return out
	}
	for _, h := range c.snap.Health {
		if c.active == model.FamilyOwner || h.UserID == c.active {
			out = append(out, h)
		}
	}
	return out
}

// HealthOfType narrows Health to one variant, as the wellness tab groups
// them.
func (c *Controller) HealthOfType(t model.HealthType) []model.Health {
	out := []model.Health{}
	for _, h := range c.Health() {
		if h.Type() == t {
			out = append(out, h)
		}
	}
	return out
}

func (c *Controller) Alerts() []briefing.Alert {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return []briefing.Alert{}
	}
	return briefing.Compute(*c.snap, c.today())
}

// Add creates a record in collection owned by the active member, closes the
// modal and reloads. Emergency contacts carry no owner.
func (c *Controller) Add(ctx context.Context, collection string, fields map[string]any) error {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	if collection != client.EmergencyContacts {
		owner := c.ActiveMember()
		if owner == "" {
			owner = c.userID
		}
		payload["userId"] = owner
	}

	if err := c.api.Create(ctx, collection, payload, nil); err != nil {
		return fmt.Errorf("add to %s: %w", collection, err)
	}
	c.CloseModal()
	return c.Load(ctx)
}

// Delete removes a record and reloads.
func (c *Controller) Delete(ctx context.Context, collection, id string) error {
	if err := c.api.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return c.Load(ctx)
}
