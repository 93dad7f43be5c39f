package orgapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUserOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/organizations", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"organizations": []map[string]interface{}{
				{"id": "org-a", "name": "Acme Brokerage", "type": TypeBrokerage},
				{"id": "org-b", "name": "Beta Carriers", "type": TypeCarrier},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	orgs, err := c.ListUserOrganizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "org-a", orgs[0].ID)
	assert.Equal(t, TypeCarrier, orgs[1].Type)
}

func TestListUserOrganizationsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "upstream unavailable",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	_, err := c.ListUserOrganizations(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "list_organizations", fe.Op)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.Equal(t, "upstream unavailable", fe.Message)
	assert.True(t, IsFetchError(err))
}

func TestListUserOrganizationsEnvelopeFailure(t *testing.T) {
	// 200 responses can still report failure in the envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "token expired",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	_, err := c.ListUserOrganizations(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusOK, fe.StatusCode)
	assert.Equal(t, "token expired", fe.Message)
}

func TestListUserOrganizationsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	_, err := c.ListUserOrganizations(context.Background())
	require.Error(t, err)
	assert.True(t, IsFetchError(err), "transport failures surface as fetch errors, never panics")

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.NotNil(t, fe.Unwrap())
}

func TestGetMembership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/organizations/org-a/membership", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"role":        "dispatcher",
			"permissions": []string{"view_loads", "manage_dispatch"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	m, err := c.GetMembership(context.Background(), "org-a")
	require.NoError(t, err)
	assert.Equal(t, "dispatcher", m.Role)
	assert.Equal(t, []string{"view_loads", "manage_dispatch"}, m.Permissions)
}

func TestGetMembershipForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "not a member of this organization",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	_, err := c.GetMembership(context.Background(), "org-a")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "get_membership", fe.Op)
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
}

func TestSetCurrentOrganization(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/organizations/current", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	require.NoError(t, c.SetCurrentOrganization(context.Background(), "org-b"))
	assert.Equal(t, map[string]string{"organization_id": "org-b"}, gotBody)
}

func TestSetCurrentOrganizationRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "membership inactive",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	err := c.SetCurrentOrganization(context.Background(), "org-b")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "set_current_organization", fe.Op)
	assert.Equal(t, "membership inactive", fe.Message)
}

func TestSetTokenUsedOnNextRequest(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token-1")
	c.SetToken("token-2")
	require.NoError(t, c.SetCurrentOrganization(context.Background(), "org-a"))
	assert.Equal(t, "Bearer token-2", auth)
}

func TestFetchErrorMessage(t *testing.T) {
	fe := &FetchError{Op: "get_membership", StatusCode: 500, Message: "boom"}
	assert.Contains(t, fe.Error(), "get_membership")
	assert.Contains(t, fe.Error(), "boom")

	assert.False(t, IsFetchError(errors.New("plain")))
	assert.False(t, IsFetchError(nil))
}
