package catalog

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// Store is the persistence contract the catalog service depends on.
// Implementations return NotFoundError and AlreadyExistsError from this
// package so callers can classify failures without knowing the backend.
type Store interface {
	InsertModel(ctx context.Context, m *Model) error
	UpdateModel(ctx context.Context, m *Model) error
	UpdateModelStatus(ctx context.Context, id int64, status Status, updatedAt time.Time) error
	DeleteModel(ctx context.Context, id int64) error
	GetModel(ctx context.Context, id int64) (*Model, error)
	GetModelByTechnicalName(ctx context.Context, name string) (*Model, error)
	GetModelByDisplayName(ctx context.Context, name string) (*Model, error)
	ListModels(ctx context.Context) ([]Model, error)
	ListApprovedModels(ctx context.Context) ([]Model, error)
	ListApprovedModelsForGroups(ctx context.Context, groupNames []string) ([]Model, error)

	InsertGroup(ctx context.Context, g *Group) error
	UpdateGroup(ctx context.Context, g *Group) error
	DeleteGroup(ctx context.Context, id int64) error
	GetGroup(ctx context.Context, id int64) (*Group, error)
	GetGroupByName(ctx context.Context, name string) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)

	AddModelToGroup(ctx context.Context, modelID, groupID int64, createdAt time.Time) error
	RemoveModelFromGroup(ctx context.Context, modelID, groupID int64) error
	GroupsForModel(ctx context.Context, modelID int64) ([]Group, error)
	ModelsForGroup(ctx context.Context, groupID int64) ([]Model, error)
}

// Service implements catalog operations: model lifecycle, group
// management, authorization edges, and upstream discovery merges.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a catalog service backed by store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "catalog"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddOrUpdateModel creates a model or updates the existing entry with the
// same technical name. New models default to status NEW; updates keep the
// stored status unless the input names one explicitly. It returns the
// persisted model and whether it was created.
func (s *Service) AddOrUpdateModel(ctx context.Context, m *Model) (*Model, bool, error) {
	if m.ModelType == "" {
		m.ModelType = ModelTypeLLM
	}
	if err := m.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.store.GetModelByTechnicalName(ctx, m.TechnicalName)
	if err != nil && !IsNotFound(err) {
		return nil, false, err
	}

	now := s.now()
	if existing == nil {
		if m.Status == "" {
			m.Status = StatusNew
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := s.store.InsertModel(ctx, m); err != nil {
			// A concurrent creation of the same technical name loses
			// the race; retry once as an update.
			if IsAlreadyExists(err) {
				return s.updateExistingModel(ctx, m)
			}
			return nil, false, err
		}
		s.logger.Info("model created",
			"technical_name", m.TechnicalName,
			"provider", m.Provider,
			"status", m.Status,
		)
		return m, true, nil
	}

	updated, _, err := s.updateExistingModel(ctx, m)
	return updated, false, err
}

func (s *Service) updateExistingModel(ctx context.Context, m *Model) (*Model, bool, error) {
	existing, err := s.store.GetModelByTechnicalName(ctx, m.TechnicalName)
	if err != nil {
		return nil, false, err
	}

	existing.URL = m.URL
	existing.DisplayName = m.DisplayName
	existing.Provider = m.Provider
	existing.APIVersion = m.APIVersion
	existing.Capabilities = m.Capabilities
	if m.Status != "" {
		existing.Status = m.Status
	}
	existing.UpdatedAt = s.now()

	if err := s.store.UpdateModel(ctx, existing); err != nil {
		return nil, false, err
	}
	s.logger.Info("model updated", "technical_name", existing.TechnicalName)
	return existing, false, nil
}

// UpdateModelStatus transitions a model to a new lifecycle state.
func (s *Service) UpdateModelStatus(ctx context.Context, id int64, status Status) (*Model, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	if err := s.store.UpdateModelStatus(ctx, id, status, s.now()); err != nil {
		return nil, err
	}
	m, err := s.store.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("model status changed",
		"technical_name", m.TechnicalName,
		"status", status,
	)
	return m, nil
}

// DeleteModel removes a model and its authorization edges.
func (s *Service) DeleteModel(ctx context.Context, id int64) error {
	if err := s.store.DeleteModel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("model deleted", "model_id", id)
	return nil
}

// GetModel retrieves a model by its numeric identifier.
func (s *Service) GetModel(ctx context.Context, id int64) (*Model, error) {
	return s.store.GetModel(ctx, id)
}

// GetByName resolves a model by technical name, falling back to display
// name. Clients address models by technical name; the fallback keeps
// older clients that send display names working.
func (s *Service) GetByName(ctx context.Context, name string) (*Model, error) {
	m, err := s.store.GetModelByTechnicalName(ctx, name)
	if err == nil {
		return m, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return s.store.GetModelByDisplayName(ctx, name)
}

// GetAllModels lists every catalog model regardless of status.
func (s *Service) GetAllModels(ctx context.Context) ([]Model, error) {
	return s.store.ListModels(ctx)
}

// AccessibleModels resolves the approved models a caller with the given
// group memberships may use. Membership in the admin group grants every
// approved model; otherwise the result is the deduplicated union across
// the caller's groups.
func (s *Service) AccessibleModels(ctx context.Context, groups []string) ([]Model, error) {
	if slices.Contains(groups, AdminGroup) {
		return s.store.ListApprovedModels(ctx)
	}
	if len(groups) == 0 {
		return []Model{}, nil
	}
	return s.store.ListApprovedModelsForGroups(ctx, groups)
}

// CanAccess reports whether the given groups grant use of the model.
func (s *Service) CanAccess(ctx context.Context, groups []string, modelID int64) (bool, error) {
	if slices.Contains(groups, AdminGroup) {
		return true, nil
	}
	accessible, err := s.AccessibleModels(ctx, groups)
	if err != nil {
		return false, err
	}
	for _, m := range accessible {
		if m.ID == modelID {
			return true, nil
		}
	}
	return false, nil
}

// SyncDiscovered merges upstream discovery results into the catalog.
// Unknown models are created in status NEW; known models get their URL,
// API version, and capabilities refreshed while their status and display
// name are preserved. Models absent from the discovery set are never
// touched.
func (s *Service) SyncDiscovered(ctx context.Context, discovered []DiscoveredModel) (*SyncResult, error) {
	result := &SyncResult{Created: []string{}, Updated: []string{}}

	for _, d := range discovered {
		technicalName := d.TechnicalName()

		existing, err := s.store.GetModelByTechnicalName(ctx, technicalName)
		if err != nil && !IsNotFound(err) {
			return result, err
		}

		now := s.now()
		if existing == nil {
			m := &Model{
				ModelType:     ModelTypeLLM,
				URL:           d.URL,
				DisplayName:   d.RemoteID,
				TechnicalName: technicalName,
				Provider:      d.Provider,
				Status:        StatusNew,
				APIVersion:    apiVersionFor(d),
				Capabilities:  d.Capabilities,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.store.InsertModel(ctx, m); err != nil {
				if IsAlreadyExists(err) {
					// Lost a concurrent refresh race; fold into an update.
					if err := s.refreshExisting(ctx, technicalName, d); err != nil {
						return result, err
					}
					result.Updated = append(result.Updated, technicalName)
					continue
				}
				return result, err
			}
			result.Created = append(result.Created, technicalName)
			continue
		}

		if err := s.refreshExisting(ctx, technicalName, d); err != nil {
			return result, err
		}
		result.Updated = append(result.Updated, technicalName)
	}

	s.logger.Info("catalog refresh merged",
		"discovered", len(discovered),
		"created", len(result.Created),
		"updated", len(result.Updated),
	)
	return result, nil
}

func (s *Service) refreshExisting(ctx context.Context, technicalName string, d DiscoveredModel) error {
	existing, err := s.store.GetModelByTechnicalName(ctx, technicalName)
	if err != nil {
		return err
	}
	existing.URL = d.URL
	existing.Provider = d.Provider
	if v := apiVersionFor(d); v != "" {
		existing.APIVersion = v
	} else if d.Provider != ProviderAzure {
		existing.APIVersion = ""
	}
	if d.Capabilities != nil {
		existing.Capabilities = d.Capabilities
	}
	existing.UpdatedAt = s.now()
	return s.store.UpdateModel(ctx, existing)
}

// apiVersionFor keeps the azure-only invariant over discovery input: an
// api_version reported for any other provider family is discarded.
func apiVersionFor(d DiscoveredModel) string {
	if d.Provider != ProviderAzure {
		return ""
	}
	return d.APIVersion
}

// CreateGroup creates a new group with a unique name.
func (s *Service) CreateGroup(ctx context.Context, g *Group) (*Group, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	if err := s.store.InsertGroup(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("group created", "name", g.Name)
	return g, nil
}

// UpdateGroup updates a group's name and description.
func (s *Service) UpdateGroup(ctx context.Context, g *Group) (*Group, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	g.UpdatedAt = s.now()
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes a group and its authorization edges.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.logger.Info("group deleted", "group_id", id)
	return nil
}

// GetGroup retrieves a group by id.
func (s *Service) GetGroup(ctx context.Context, id int64) (*Group, error) {
	return s.store.GetGroup(ctx, id)
}

// GetGroupByName retrieves a group by its unique name.
func (s *Service) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	return s.store.GetGroupByName(ctx, name)
}

// ListGroups lists all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.store.ListGroups(ctx)
}

// AddModelToGroup authorizes a group to use a model. Adding an edge that
// already exists is a no-op.
func (s *Service) AddModelToGroup(ctx context.Context, modelID, groupID int64) error {
	if _, err := s.store.GetModel(ctx, modelID); err != nil {
		return err
	}
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.store.AddModelToGroup(ctx, modelID, groupID, s.now()); err != nil {
		return err
	}
	s.logger.Info("model authorized for group", "model_id", modelID, "group_id", groupID)
	return nil
}

// RemoveModelFromGroup revokes a group's access to a model. Removing an
// edge that does not exist returns a NotFoundError.
func (s *Service) RemoveModelFromGroup(ctx context.Context, modelID, groupID int64) error {
	if _, err := s.store.GetModel(ctx, modelID); err != nil {
		return err
	}
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.store.RemoveModelFromGroup(ctx, modelID, groupID); err != nil {
		return err
	}
	s.logger.Info("model authorization revoked", "model_id", modelID, "group_id", groupID)
	return nil
}

// GroupsForModel lists the groups authorized to use a model.
func (s *Service) GroupsForModel(ctx context.Context, modelID int64) ([]Group, error) {
	if _, err := s.store.GetModel(ctx, modelID); err != nil {
		return nil, err
	}
	return s.store.GroupsForModel(ctx, modelID)
}

// ModelsForGroup lists the models a group is authorized to use.
func (s *Service) ModelsForGroup(ctx context.Context, groupID int64) ([]Model, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ModelsForGroup(ctx, groupID)
}
