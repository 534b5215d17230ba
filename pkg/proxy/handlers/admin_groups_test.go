package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulcrum-hq/portunus/pkg/catalog"
)

func TestAdminGroupCRUD(t *testing.T) {
	f := newFixture(t)
	mux := adminMux(f, nil)

	// Create.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodPost, "/v1/admin/groups",
		map[string]string{"name": "research", "description": "ML research"}, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var g catalog.Group
	decode(t, rec, &g)
	if g.ID == 0 || g.Name != "research" {
		t.Errorf("group = %+v", g)
	}

	// Duplicate name conflicts.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodPost, "/v1/admin/groups",
		map[string]string{"name": "research"}, nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}

	// Read.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodGet, fmt.Sprintf("/v1/admin/groups/%d", g.ID), nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Update.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodPut, fmt.Sprintf("/v1/admin/groups/%d", g.ID),
		map[string]string{"name": "research", "description": "applied research"}, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	decode(t, rec, &g)
	if g.Description != "applied research" {
		t.Errorf("description = %q", g.Description)
	}

	// List includes the fixture group and this one.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodGet, "/v1/admin/groups", nil, nil))
	var groups []catalog.Group
	decode(t, rec, &groups)
	if len(groups) != 2 {
		t.Errorf("groups = %d, want 2", len(groups))
	}

	// Delete, then 404.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodDelete, fmt.Sprintf("/v1/admin/groups/%d", g.ID), nil, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodGet, fmt.Sprintf("/v1/admin/groups/%d", g.ID), nil, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestAdminGroupValidation(t *testing.T) {
	f := newFixture(t)
	mux := adminMux(f, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodPost, "/v1/admin/groups",
		map[string]string{"description": "nameless"}, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdminGroupModels(t *testing.T) {
	f := newFixture(t)
	mux := adminMux(f, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, request(t, http.MethodGet,
		fmt.Sprintf("/v1/admin/groups/%d/models", f.group.ID), nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var models []catalog.Model
	decode(t, rec, &models)
	if len(models) != 1 || models[0].TechnicalName != "openai_gpt-4" {
		t.Errorf("models = %+v", models)
	}
}
