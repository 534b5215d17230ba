package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/usage"
)

// Memory is an in-process Store for tests and ephemeral deployments. It
// mirrors the SQL backends' error and ordering semantics, including the
// millisecond timestamp precision the schema stores.
type Memory struct {
	mu sync.RWMutex

	models  map[int64]*catalog.Model
	groups  map[int64]*catalog.Group
	edges   map[edgeKey]time.Time
	users   map[string]*identity.User
	apiKeys map[int64]*identity.APIKey
	usages  []usage.Record
	audits  []audit.Record

	nextModelID int64
	nextGroupID int64
	nextKeyID   int64
	nextUsageID int64
}

type edgeKey struct {
	modelID int64
	groupID int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		models:  make(map[int64]*catalog.Model),
		groups:  make(map[int64]*catalog.Group),
		edges:   make(map[edgeKey]time.Time),
		users:   make(map[string]*identity.User),
		apiKeys: make(map[int64]*identity.APIKey),
	}
}

// Ping implements Store.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements Store.
func (m *Memory) Close() error { return nil }

// storedTime normalizes to the precision the SQL schema keeps.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func cloneModel(src *catalog.Model) *catalog.Model {
	c := *src
	// The SQL backends round-trip empty capabilities to nil; match that.
	if len(src.Capabilities) == 0 {
		c.Capabilities = nil
	} else {
		c.Capabilities = maps.Clone(src.Capabilities)
	}
	return &c
}

func cloneGroup(src *catalog.Group) *catalog.Group {
	c := *src
	return &c
}

func cloneUser(src *identity.User) *identity.User {
	c := *src
	// The SQL backends round-trip nil groups to an empty slice; match that.
	if src.Groups == nil {
		c.Groups = []string{}
	} else {
		c.Groups = slices.Clone(src.Groups)
	}
	return &c
}

func cloneAPIKey(src *identity.APIKey) *identity.APIKey {
	c := *src
	if src.ExpiresAt != nil {
		t := *src.ExpiresAt
		c.ExpiresAt = &t
	}
	if src.LastUsedAt != nil {
		t := *src.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

func cloneAuditRecord(src *audit.Record) audit.Record {
	c := *src
	if len(src.Metadata) == 0 {
		c.Metadata = nil
	} else {
		c.Metadata = maps.Clone(src.Metadata)
	}
	return c
}

func sortedByID[T any](items []T, id func(T) int64) {
	slices.SortFunc(items, func(a, b T) int {
		switch {
		case id(a) < id(b):
			return -1
		case id(a) > id(b):
			return 1
		}
		return 0
	})
}

// InsertModel implements catalog.Store.
func (m *Memory) InsertModel(_ context.Context, model *catalog.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.models {
		if existing.TechnicalName == model.TechnicalName {
			return catalog.NewAlreadyExists("model", model.TechnicalName)
		}
	}

	m.nextModelID++
	model.ID = m.nextModelID
	model.CreatedAt = storedTime(model.CreatedAt)
	model.UpdatedAt = storedTime(model.UpdatedAt)
	m.models[model.ID] = cloneModel(model)
	return nil
}

// UpdateModel implements catalog.Store.
func (m *Memory) UpdateModel(_ context.Context, model *catalog.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.models[model.ID]; !ok {
		return catalog.NewNotFound("model", model.ID)
	}
	for id, existing := range m.models {
		if id != model.ID && existing.TechnicalName == model.TechnicalName {
			return catalog.NewAlreadyExists("model", model.TechnicalName)
		}
	}

	model.UpdatedAt = storedTime(model.UpdatedAt)
	stored := cloneModel(model)
	stored.CreatedAt = m.models[model.ID].CreatedAt
	m.models[model.ID] = stored
	return nil
}

// UpdateModelStatus implements catalog.Store.
func (m *Memory) UpdateModelStatus(_ context.Context, id int64, status catalog.Status, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	model, ok := m.models[id]
	if !ok {
		return catalog.NewNotFound("model", id)
	}
	model.Status = status
	model.UpdatedAt = storedTime(updatedAt)
	return nil
}

// DeleteModel implements catalog.Store.
func (m *Memory) DeleteModel(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.models[id]; !ok {
		return catalog.NewNotFound("model", id)
	}
	for key := range m.edges {
		if key.modelID == id {
			delete(m.edges, key)
		}
	}
	delete(m.models, id)
	return nil
}

// GetModel implements catalog.Store.
func (m *Memory) GetModel(_ context.Context, id int64) (*catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	model, ok := m.models[id]
	if !ok {
		return nil, catalog.NewNotFound("model", id)
	}
	return cloneModel(model), nil
}

// GetModelByTechnicalName implements catalog.Store.
func (m *Memory) GetModelByTechnicalName(_ context.Context, name string) (*catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, model := range m.models {
		if model.TechnicalName == name {
			return cloneModel(model), nil
		}
	}
	return nil, catalog.NewNotFound("model", name)
}

// GetModelByDisplayName implements catalog.Store. Display names are not
// unique; the oldest match wins.
func (m *Memory) GetModelByDisplayName(_ context.Context, name string) (*catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *catalog.Model
	for _, model := range m.models {
		if model.DisplayName != name {
			continue
		}
		if found == nil || model.ID < found.ID {
			found = model
		}
	}
	if found == nil {
		return nil, catalog.NewNotFound("model", name)
	}
	return cloneModel(found), nil
}

func (m *Memory) listModelsLocked(keep func(*catalog.Model) bool) []catalog.Model {
	models := []catalog.Model{}
	for _, model := range m.models {
		if keep(model) {
			models = append(models, *cloneModel(model))
		}
	}
	sortedByID(models, func(m catalog.Model) int64 { return m.ID })
	return models
}

// ListModels implements catalog.Store.
func (m *Memory) ListModels(_ context.Context) ([]catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listModelsLocked(func(*catalog.Model) bool { return true }), nil
}

// ListApprovedModels implements catalog.Store.
func (m *Memory) ListApprovedModels(_ context.Context) ([]catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listModelsLocked(func(model *catalog.Model) bool {
		return model.Status == catalog.StatusApproved
	}), nil
}

// ListApprovedModelsForGroups implements catalog.Store.
func (m *Memory) ListApprovedModelsForGroups(_ context.Context, groupNames []string) ([]catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(groupNames) == 0 {
		return []catalog.Model{}, nil
	}

	linked := make(map[int64]bool)
	for key := range m.edges {
		group, ok := m.groups[key.groupID]
		if ok && slices.Contains(groupNames, group.Name) {
			linked[key.modelID] = true
		}
	}

	return m.listModelsLocked(func(model *catalog.Model) bool {
		return linked[model.ID] && model.Status == catalog.StatusApproved
	}), nil
}

// InsertGroup implements catalog.Store.
func (m *Memory) InsertGroup(_ context.Context, g *catalog.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.groups {
		if existing.Name == g.Name {
			return catalog.NewAlreadyExists("group", g.Name)
		}
	}

	m.nextGroupID++
	g.ID = m.nextGroupID
	g.CreatedAt = storedTime(g.CreatedAt)
	g.UpdatedAt = storedTime(g.UpdatedAt)
	m.groups[g.ID] = cloneGroup(g)
	return nil
}

// UpdateGroup implements catalog.Store.
func (m *Memory) UpdateGroup(_ context.Context, g *catalog.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[g.ID]; !ok {
		return catalog.NewNotFound("group", g.ID)
	}
	for id, existing := range m.groups {
		if id != g.ID && existing.Name == g.Name {
			return catalog.NewAlreadyExists("group", g.Name)
		}
	}

	g.UpdatedAt = storedTime(g.UpdatedAt)
	stored := cloneGroup(g)
	stored.CreatedAt = m.groups[g.ID].CreatedAt
	m.groups[g.ID] = stored
	return nil
}

// DeleteGroup implements catalog.Store.
func (m *Memory) DeleteGroup(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[id]; !ok {
		return catalog.NewNotFound("group", id)
	}
	for key := range m.edges {
		if key.groupID == id {
			delete(m.edges, key)
		}
	}
	delete(m.groups, id)
	return nil
}

// GetGroup implements catalog.Store.
func (m *Memory) GetGroup(_ context.Context, id int64) (*catalog.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[id]
	if !ok {
		return nil, catalog.NewNotFound("group", id)
	}
	return cloneGroup(g), nil
}

// GetGroupByName implements catalog.Store.
func (m *Memory) GetGroupByName(_ context.Context, name string) (*catalog.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.groups {
		if g.Name == name {
			return cloneGroup(g), nil
		}
	}
	return nil, catalog.NewNotFound("group", name)
}

// ListGroups implements catalog.Store.
func (m *Memory) ListGroups(_ context.Context) ([]catalog.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := []catalog.Group{}
	for _, g := range m.groups {
		groups = append(groups, *cloneGroup(g))
	}
	sortedByID(groups, func(g catalog.Group) int64 { return g.ID })
	return groups, nil
}

// AddModelToGroup implements catalog.Store. Existing edges are left
// untouched, making the operation idempotent.
func (m *Memory) AddModelToGroup(_ context.Context, modelID, groupID int64, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := edgeKey{modelID: modelID, groupID: groupID}
	if _, ok := m.edges[key]; ok {
		return nil
	}
	m.edges[key] = storedTime(createdAt)
	return nil
}

// RemoveModelFromGroup implements catalog.Store.
func (m *Memory) RemoveModelFromGroup(_ context.Context, modelID, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := edgeKey{modelID: modelID, groupID: groupID}
	if _, ok := m.edges[key]; !ok {
		return catalog.NewNotFound("model authorization",
			fmt.Sprintf("model %d in group %d", modelID, groupID))
	}
	delete(m.edges, key)
	return nil
}

// GroupsForModel implements catalog.Store.
func (m *Memory) GroupsForModel(_ context.Context, modelID int64) ([]catalog.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := []catalog.Group{}
	for key := range m.edges {
		if key.modelID != modelID {
			continue
		}
		if g, ok := m.groups[key.groupID]; ok {
			groups = append(groups, *cloneGroup(g))
		}
	}
	sortedByID(groups, func(g catalog.Group) int64 { return g.ID })
	return groups, nil
}

// ModelsForGroup implements catalog.Store.
func (m *Memory) ModelsForGroup(_ context.Context, groupID int64) ([]catalog.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	linked := make(map[int64]bool)
	for key := range m.edges {
		if key.groupID == groupID {
			linked[key.modelID] = true
		}
	}
	return m.listModelsLocked(func(model *catalog.Model) bool {
		return linked[model.ID]
	}), nil
}

// InsertUser implements identity.Store.
func (m *Memory) InsertUser(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; ok {
		return identity.NewAlreadyExists("user", u.Username)
	}
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return identity.NewAlreadyExists("user", u.Username)
		}
	}

	u.CreatedAt = storedTime(u.CreatedAt)
	u.UpdatedAt = storedTime(u.UpdatedAt)
	m.users[u.ID] = cloneUser(u)
	return nil
}

// UpdateUser implements identity.Store.
func (m *Memory) UpdateUser(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return identity.NewNotFound("user", u.ID)
	}
	for id, existing := range m.users {
		if id != u.ID && existing.Username == u.Username {
			return identity.NewAlreadyExists("user", u.Username)
		}
	}

	u.UpdatedAt = storedTime(u.UpdatedAt)
	stored := cloneUser(u)
	stored.CreatedAt = m.users[u.ID].CreatedAt
	m.users[u.ID] = stored
	return nil
}

// DeleteUser implements identity.Store. The user's API keys go with it;
// usage rows stay for accounting.
func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return identity.NewNotFound("user", id)
	}
	for keyID, key := range m.apiKeys {
		if key.UserID == id {
			delete(m.apiKeys, keyID)
		}
	}
	delete(m.users, id)
	return nil
}

// GetUser implements identity.Store.
func (m *Memory) GetUser(_ context.Context, id string) (*identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, identity.NewNotFound("user", id)
	}
	return cloneUser(u), nil
}

// GetUserByUsername implements identity.Store.
func (m *Memory) GetUserByUsername(_ context.Context, username string) (*identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, identity.NewNotFound("user", username)
}

// ListUsers implements identity.Store.
func (m *Memory) ListUsers(_ context.Context) ([]identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []identity.User{}
	for _, u := range m.users {
		users = append(users, *cloneUser(u))
	}
	slices.SortFunc(users, func(a, b identity.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

// InsertAPIKey implements identity.Store.
func (m *Memory) InsertAPIKey(_ context.Context, k *identity.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.apiKeys {
		if existing.KeyHash == k.KeyHash {
			return identity.NewAlreadyExists("api key", k.Name)
		}
	}

	m.nextKeyID++
	k.ID = m.nextKeyID
	k.CreatedAt = storedTime(k.CreatedAt)
	m.apiKeys[k.ID] = cloneAPIKey(k)
	return nil
}

// DeleteAPIKey implements identity.Store.
func (m *Memory) DeleteAPIKey(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apiKeys[id]; !ok {
		return identity.NewNotFound("api key", id)
	}
	delete(m.apiKeys, id)
	return nil
}

// GetAPIKey implements identity.Store.
func (m *Memory) GetAPIKey(_ context.Context, id int64) (*identity.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.apiKeys[id]
	if !ok {
		return nil, identity.NewNotFound("api key", id)
	}
	return cloneAPIKey(k), nil
}

// GetAPIKeyByHash implements identity.Store.
func (m *Memory) GetAPIKeyByHash(_ context.Context, hash string) (*identity.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range m.apiKeys {
		if k.KeyHash == hash {
			return cloneAPIKey(k), nil
		}
	}
	return nil, identity.NewNotFound("api key", "by hash")
}

// ListAPIKeysForUser implements identity.Store.
func (m *Memory) ListAPIKeysForUser(_ context.Context, userID string) ([]identity.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := []identity.APIKey{}
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			keys = append(keys, *cloneAPIKey(k))
		}
	}
	sortedByID(keys, func(k identity.APIKey) int64 { return k.ID })
	return keys, nil
}

// TouchAPIKey implements identity.Store.
func (m *Memory) TouchAPIKey(_ context.Context, id int64, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.apiKeys[id]
	if !ok {
		return identity.NewNotFound("api key", id)
	}
	t := storedTime(usedAt)
	k.LastUsedAt = &t
	return nil
}

// InsertUsage implements usage.Store.
func (m *Memory) InsertUsage(_ context.Context, r *usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextUsageID++
	r.ID = m.nextUsageID
	r.CreatedAt = storedTime(r.CreatedAt)
	m.usages = append(m.usages, *r)
	return nil
}

// SumUsageByModel implements usage.Store.
func (m *Memory) SumUsageByModel(_ context.Context, username string, since time.Time) ([]usage.ModelTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since = storedTime(since)
	byModel := make(map[string]*usage.ModelTotals)
	for _, r := range m.usages {
		if r.Username != username || r.CreatedAt.Before(since) {
			continue
		}
		t, ok := byModel[r.Model]
		if !ok {
			t = &usage.ModelTotals{Model: r.Model}
			byModel[r.Model] = t
		}
		t.PromptTokens += int64(r.PromptTokens)
		t.CompletionTokens += int64(r.CompletionTokens)
		t.TotalTokens += int64(r.TotalTokens)
		t.Requests++
	}

	totals := []usage.ModelTotals{}
	for _, t := range byModel {
		totals = append(totals, *t)
	}
	slices.SortFunc(totals, func(a, b usage.ModelTotals) int {
		return strings.Compare(a.Model, b.Model)
	})
	return totals, nil
}

// ListUsage implements usage.Store, newest rows first.
func (m *Memory) ListUsage(_ context.Context, username string, since time.Time, limit int) ([]usage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since = storedTime(since)
	records := []usage.Record{}
	for _, r := range m.usages {
		if r.Username == username && !r.CreatedAt.Before(since) {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b usage.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case b.ID < a.ID:
			return -1
		case b.ID > a.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// InsertAuditRecord implements audit.Store.
func (m *Memory) InsertAuditRecord(_ context.Context, r *audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneAuditRecord(r)
	stored.Timestamp = storedTime(r.Timestamp)
	m.audits = append(m.audits, stored)
	return nil
}

func matchesAuditQuery(r *audit.Record, q audit.Query) bool {
	if q.Username != "" && r.Username != q.Username {
		return false
	}
	if q.PathPrefix != "" && !strings.HasPrefix(r.Path, q.PathPrefix) {
		return false
	}
	if q.StatusCode != 0 && r.StatusCode != q.StatusCode {
		return false
	}
	if !q.Since.IsZero() && r.Timestamp.Before(storedTime(q.Since)) {
		return false
	}
	if !q.Until.IsZero() && !r.Timestamp.Before(storedTime(q.Until)) {
		return false
	}
	return true
}

// QueryAuditRecords implements audit.Store, newest entries first.
func (m *Memory) QueryAuditRecords(_ context.Context, q audit.Query) ([]audit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q.Normalize()
	matched := []audit.Record{}
	for i := range m.audits {
		if matchesAuditQuery(&m.audits[i], q) {
			matched = append(matched, cloneAuditRecord(&m.audits[i]))
		}
	}
	slices.SortFunc(matched, func(a, b audit.Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	if q.Offset >= len(matched) {
		return []audit.Record{}, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// CountAuditRecords implements audit.Store.
func (m *Memory) CountAuditRecords(_ context.Context, q audit.Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for i := range m.audits {
		if matchesAuditQuery(&m.audits[i], q) {
			count++
		}
	}
	return count, nil
}

// DeleteAuditRecordsBefore implements audit.Store.
func (m *Memory) DeleteAuditRecordsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff = storedTime(cutoff)
	kept := m.audits[:0]
	var deleted int64
	for _, r := range m.audits {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.audits = kept
	return deleted, nil
}
