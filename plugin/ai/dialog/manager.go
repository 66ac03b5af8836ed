package dialog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
	storecache "github.com/vosarsen/ai-admin-v2-sub004/store/cache"
)

// tierCold labels context loads served by the cold path.
const tierCold = "cold"

// Store is the durable collaborator. *store.Store implements it.
type Store interface {
	GetDialogContext(ctx context.Context, find *store.FindDialogContext) (*store.DialogContext, error)
	UpdateDialogContext(ctx context.Context, update *store.UpdateDialogContext) (*store.DialogContext, error)
	ClearDialogContext(ctx context.Context, find *store.FindDialogContext) error
	GetClientPreferences(ctx context.Context, find *store.FindClientPreferences) (*store.ClientPreferences, error)
	UpsertClientPreferences(ctx context.Context, upsert *store.UpsertClientPreferences) (*store.ClientPreferences, error)
	CreateConversationMessage(ctx context.Context, create *store.ConversationMessage) (*store.ConversationMessage, error)
	ListConversationMessages(ctx context.Context, find *store.FindConversationMessage) ([]*store.ConversationMessage, error)
}

// Manager loads and saves conversation contexts.
type Manager struct {
	store    Store
	catalog  catalog.Loader
	cache    *storecache.Tiered[*Context]
	exporter *metrics.Exporter
	logger   *slog.Logger
	now      func() time.Time

	freshness     time.Duration
	historyWindow int
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache sets the two-tier context cache.
func WithCache(c *storecache.Tiered[*Context]) Option {
	return func(m *Manager) { m.cache = c }
}

// WithExporter counts context loads per serving tier.
func WithExporter(e *metrics.Exporter) Option {
	return func(m *Manager) { m.exporter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithFreshness sets the maximum age of a cached context.
func WithFreshness(d time.Duration) Option {
	return func(m *Manager) { m.freshness = d }
}

// WithHistoryWindow sets how many recent messages a context carries.
func WithHistoryWindow(n int) Option {
	return func(m *Manager) { m.historyWindow = n }
}

// NewManager creates a context manager. Without WithCache an in-process
// cache with no shared tier is used.
func NewManager(s Store, loader catalog.Loader, opts ...Option) *Manager {
	m := &Manager{
		store:         s,
		catalog:       loader,
		logger:        slog.Default(),
		now:           time.Now,
		freshness:     timeout.ContextFreshness,
		historyWindow: timeout.HistoryWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = storecache.NewTiered(aicache.NewLRUCache[*Context](aicache.DefaultMaxSize, m.freshness), nil, 0, m.logger)
	}
	return m
}

// CacheStats returns the in-process tier counters.
func (m *Manager) CacheStats() aicache.Stats {
	return m.cache.Memory().Stats()
}

// RunCacheCleanup removes expired in-process entries every interval until ctx is done.
func (m *Manager) RunCacheCleanup(ctx context.Context, interval time.Duration) {
	m.cache.Memory().Run(ctx, interval)
}

// LoadFullContext returns the context of (phone, companyID), trying the
// in-process tier, then the shared tier, then the cold path. Cached copies
// older than the freshness window are never trusted.
func (m *Manager) LoadFullContext(ctx context.Context, phone string, companyID int) (*Context, error) {
	key := cacheKey(phone, companyID)
	if c, tier, ok := m.cache.Get(ctx, key); ok && c != nil {
		if m.now().Sub(c.LoadedAt) < m.freshness {
			m.recordLoad(string(tier))
			cp := *c
			return &cp, nil
		}
		m.logger.Debug("cached context is stale", slog.String("key", key), slog.String("tier", string(tier)))
	}

	c, err := m.loadCold(ctx, phone, companyID)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, key, c); err != nil {
		m.logger.Warn("failed to cache context", slog.String("key", key), slog.String("error", err.Error()))
	}
	m.recordLoad(tierCold)
	cp := *c
	return &cp, nil
}

func (m *Manager) recordLoad(tier string) {
	if m.exporter != nil {
		m.exporter.RecordContextLoad(tier)
	}
}

// loadCold loads everything in parallel. Only the company and its services
// are required; any other failure degrades the context and is logged.
func (m *Manager) loadCold(ctx context.Context, phone string, companyID int) (*Context, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.ColdLoadTimeout)
	defer cancel()

	now := m.now()
	c := &Context{Phone: phone, CompanyID: companyID, LoadedAt: now}
	var (
		dialog *store.DialogContext
		prefs  map[string]any
		msgs   []*store.ConversationMessage
	)

	optional := func(what string, fn func() error) func() error {
		return func() error {
			if err := fn(); err != nil {
				m.logger.Warn("context enrichment degraded",
					slog.String("part", what),
					slog.String("key", Key(phone, companyID)),
					slog.String("error", err.Error()),
				)
			}
			return nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		company, err := m.catalog.LoadCompany(gctx, companyID)
		if err != nil {
			return errors.Wrap(err, "load company")
		}
		c.Company = company
		return nil
	})
	g.Go(func() error {
		services, err := m.catalog.LoadServices(gctx, companyID)
		if err != nil {
			return errors.Wrap(err, "load services")
		}
		c.Services = services
		return nil
	})
	g.Go(optional("staff", func() (err error) {
		c.Staff, err = m.catalog.LoadStaff(gctx, companyID)
		return err
	}))
	g.Go(optional("staff_schedules", func() (err error) {
		c.StaffSchedules, err = m.catalog.LoadStaffSchedules(gctx, companyID, now, now.AddDate(0, 0, timeout.ScheduleDays))
		return err
	}))
	g.Go(optional("client", func() (err error) {
		c.Client, err = m.catalog.FindClient(gctx, companyID, phone)
		return err
	}))
	g.Go(optional("business_stats", func() (err error) {
		c.BusinessStats, err = m.catalog.LoadBusinessStats(gctx, companyID)
		return err
	}))
	g.Go(optional("dialog", func() (err error) {
		dialog, err = m.store.GetDialogContext(gctx, &store.FindDialogContext{Phone: phone, CompanyID: companyID})
		return err
	}))
	g.Go(optional("preferences", func() (err error) {
		prefs, err = m.loadPreferences(gctx, phone, companyID)
		return err
	}))
	g.Go(optional("history", func() (err error) {
		msgs, err = m.store.ListConversationMessages(gctx, &store.FindConversationMessage{
			Phone:     phone,
			CompanyID: companyID,
			Limit:     m.historyWindow,
		})
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "cold load %s", Key(phone, companyID))
	}

	c.Preferences = prefs
	for _, msg := range msgs {
		c.History = append(c.History, Message{Role: string(msg.Role), Content: msg.Content, At: time.Unix(msg.CreatedTs, 0)})
	}
	m.applyDialog(c, dialog, now)
	if c.ClientName == "" && c.Client != nil {
		c.ClientName = c.Client.Name
	}
	RankServices(c.Services, c.Client, c.Preferences)
	return c, nil
}

// applyDialog decodes the stored dialog state. Undecodable documents and
// expired pending actions are dropped.
func (m *Manager) applyDialog(c *Context, d *store.DialogContext, now time.Time) {
	c.DialogState = store.DialogStateIdle
	if d == nil {
		return
	}
	c.ClientName = d.ClientName
	if d.DialogState != "" {
		c.DialogState = d.DialogState
	}
	if d.LastActivity > 0 {
		c.LastActivity = time.Unix(d.LastActivity, 0)
	}
	m.decode(d.Selection, &c.Selection, "selection")

	var pending command.PendingAction
	if m.decode(d.PendingAction, &pending, "pending_action") && now.Sub(pending.CreatedAt) < timeout.PendingActionTTL {
		c.PendingAction = &pending
	}
	var marker ProcessingMarker
	if m.decode(d.ProcessingMarker, &marker, "processing_marker") {
		c.ProcessingMarker = &marker
	}
}

func (m *Manager) decode(raw string, v any, what string) bool {
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		m.logger.Warn("ignoring undecodable dialog field", slog.String("field", what), slog.String("error", err.Error()))
		return false
	}
	return true
}

func (m *Manager) loadPreferences(ctx context.Context, phone string, companyID int) (map[string]any, error) {
	row, err := m.store.GetClientPreferences(ctx, &store.FindClientPreferences{Phone: phone, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	prefs := make(map[string]any)
	if row == nil || row.Data == "" {
		return prefs, nil
	}
	if err := json.Unmarshal([]byte(row.Data), &prefs); err != nil {
		return nil, errors.Wrap(err, "decode preferences")
	}
	return prefs, nil
}

// SaveContext persists only the fields set in upd, then invalidates both
// cache tiers so the next load re-reads the durable store.
func (m *Manager) SaveContext(ctx context.Context, phone string, companyID int, upd *Update) error {
	if upd == nil {
		return nil
	}
	defer m.invalidate(ctx, phone, companyID)

	if upd.touchesDialog() {
		if err := m.saveDialog(ctx, phone, companyID, upd); err != nil {
			return err
		}
	}
	for _, msg := range upd.Messages {
		if err := m.addMessage(ctx, phone, companyID, msg); err != nil {
			return err
		}
	}
	if len(upd.Preferences) > 0 {
		if err := m.mergePreferences(ctx, phone, companyID, upd.Preferences); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) saveDialog(ctx context.Context, phone string, companyID int, upd *Update) error {
	now := m.now().Unix()
	update := &store.UpdateDialogContext{
		Phone:        phone,
		CompanyID:    companyID,
		ClientName:   upd.ClientName,
		DialogState:  upd.DialogState,
		LastActivity: &now,
	}

	if upd.Selection != nil {
		current, err := m.store.GetDialogContext(ctx, &store.FindDialogContext{Phone: phone, CompanyID: companyID})
		if err != nil {
			return errors.Wrap(err, "read dialog selection")
		}
		var sel Selection
		if current != nil {
			m.decode(current.Selection, &sel, "selection")
		}
		raw, err := json.Marshal(sel.Merge(*upd.Selection))
		if err != nil {
			return errors.Wrap(err, "encode selection")
		}
		s := string(raw)
		update.Selection = &s
	}

	switch {
	case upd.PendingAction != nil:
		raw, err := json.Marshal(upd.PendingAction)
		if err != nil {
			return errors.Wrap(err, "encode pending action")
		}
		s := string(raw)
		update.PendingAction = &s
	case upd.ClearPending:
		empty := ""
		update.PendingAction = &empty
	}

	if _, err := m.store.UpdateDialogContext(ctx, update); err != nil {
		return errors.Wrapf(err, "save dialog %s", Key(phone, companyID))
	}
	return nil
}

func (m *Manager) addMessage(ctx context.Context, phone string, companyID int, msg Message) error {
	at := msg.At
	if at.IsZero() {
		at = m.now()
	}
	_, err := m.store.CreateConversationMessage(ctx, &store.ConversationMessage{
		UID:       shortuuid.New(),
		Phone:     phone,
		CompanyID: companyID,
		Role:      store.ConversationMessageRole(msg.Role),
		Content:   msg.Content,
		CreatedTs: at.Unix(),
	})
	return errors.Wrap(err, "add message")
}

// SavePreferences merges prefs into the stored preferences and invalidates
// the cached context.
func (m *Manager) SavePreferences(ctx context.Context, phone string, companyID int, prefs map[string]any) error {
	defer m.invalidate(ctx, phone, companyID)
	return m.mergePreferences(ctx, phone, companyID, prefs)
}

func (m *Manager) mergePreferences(ctx context.Context, phone string, companyID int, prefs map[string]any) error {
	merged, err := m.loadPreferences(ctx, phone, companyID)
	if err != nil {
		return errors.Wrap(err, "read preferences")
	}
	for k, v := range prefs {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return errors.Wrap(err, "encode preferences")
	}
	_, err = m.store.UpsertClientPreferences(ctx, &store.UpsertClientPreferences{
		Phone:     phone,
		CompanyID: companyID,
		Data:      string(raw),
	})
	return errors.Wrap(err, "save preferences")
}

// ClearDialog resets the volatile dialog state. Preferences survive.
func (m *Manager) ClearDialog(ctx context.Context, phone string, companyID int) error {
	defer m.invalidate(ctx, phone, companyID)
	err := m.store.ClearDialogContext(ctx, &store.FindDialogContext{Phone: phone, CompanyID: companyID})
	return errors.Wrapf(err, "clear dialog %s", Key(phone, companyID))
}

// SetProcessingMarker records that messageID is being processed. The marker
// is not part of the trusted cached state, so the cache is left alone.
func (m *Manager) SetProcessingMarker(ctx context.Context, phone string, companyID int, messageID string) error {
	raw, err := json.Marshal(ProcessingMarker{MessageID: messageID, StartedAt: m.now()})
	if err != nil {
		return errors.Wrap(err, "encode processing marker")
	}
	s := string(raw)
	_, err = m.store.UpdateDialogContext(ctx, &store.UpdateDialogContext{Phone: phone, CompanyID: companyID, ProcessingMarker: &s})
	return errors.Wrap(err, "set processing marker")
}

// ClearProcessingMarker removes the processing marker.
func (m *Manager) ClearProcessingMarker(ctx context.Context, phone string, companyID int) error {
	empty := ""
	_, err := m.store.UpdateDialogContext(ctx, &store.UpdateDialogContext{Phone: phone, CompanyID: companyID, ProcessingMarker: &empty})
	return errors.Wrap(err, "clear processing marker")
}

// InvalidateCache drops the cached context of (phone, companyID) from both tiers.
func (m *Manager) InvalidateCache(ctx context.Context, phone string, companyID int) error {
	return m.cache.Delete(ctx, cacheKey(phone, companyID))
}

func (m *Manager) invalidate(ctx context.Context, phone string, companyID int) {
	if err := m.InvalidateCache(ctx, phone, companyID); err != nil {
		m.logger.Warn("failed to invalidate cached context",
			slog.String("key", Key(phone, companyID)),
			slog.String("error", err.Error()),
		)
	}
}
