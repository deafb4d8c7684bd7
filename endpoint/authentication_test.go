package endpoint_test

import (
	"net/http"
	"testing"

	"github.com/ariebrainware/educe-api/endpoint"
	"github.com/ariebrainware/educe-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Customer(t *testing.T) {
	s := setupTestServer(t)

	resp := s.mustCall(http.StatusCreated, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "  Parent@Example.com ",
		"password": "password123",
		"name":     "  Jane   Doe ",
	})
	var auth endpoint.AuthResponse
	decode(t, resp, &auth)
	assert.Equal(t, "parent@example.com", auth.User.Email)
	assert.Equal(t, "Jane Doe", auth.User.Name)
	assert.Equal(t, model.RoleCustomer, auth.User.Role)
	assert.True(t, auth.User.Approved)
	assert.Nil(t, auth.Psychologist)
	require.NotEmpty(t, auth.Token)

	resp = s.mustCall(http.StatusOK, http.MethodGet, "/api/users/profile", auth.Token, nil)
	assert.Contains(t, string(resp.Data), `"email":"parent@example.com"`)
	assert.NotContains(t, string(resp.Data), "password")
}

func TestRegister_PsychologistStartsUnapproved(t *testing.T) {
	s := setupTestServer(t)
	p := s.register(model.RolePsychologist, "sarah@example.com")
	require.NotEmpty(t, p.PsychologistID)

	var profile model.Psychologist
	require.NoError(t, s.db.Where("id = ?", p.PsychologistID).Take(&profile).Error)
	assert.False(t, profile.Approved)
	assert.True(t, profile.Available)
	assert.Equal(t, model.DefaultRating, profile.Rating)

	var user model.User
	require.NoError(t, s.db.Take(&user, p.ID).Error)
	assert.False(t, user.Approved)
}

func TestRegister_Rejects(t *testing.T) {
	s := setupTestServer(t)
	s.register(model.RoleCustomer, "taken@example.com")

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"duplicate email", map[string]interface{}{"email": "TAKEN@example.com", "password": "password123", "name": "X"}},
		{"admin role", map[string]interface{}{"email": "a@example.com", "password": "password123", "name": "X", "role": "admin"}},
		{"unknown role", map[string]interface{}{"email": "b@example.com", "password": "password123", "name": "X", "role": "wizard"}},
		{"short password", map[string]interface{}{"email": "c@example.com", "password": "123", "name": "X"}},
		{"bad email", map[string]interface{}{"email": "nope", "password": "password123", "name": "X"}},
		{"missing name", map[string]interface{}{"email": "d@example.com", "password": "password123"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, resp := s.call(http.MethodPost, "/api/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestLogin(t *testing.T) {
	s := setupTestServer(t)
	p := s.register(model.RolePsychologist, "sarah@example.com")

	rr, resp := s.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "sarah@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid credentials", resp.Msg)

	rr, _ = s.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Unapproved psychologists may still sign in to see their status.
	resp = s.mustCall(http.StatusOK, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "Sarah@example.com", "password": "password123"})
	var auth endpoint.AuthResponse
	decode(t, resp, &auth)
	assert.Equal(t, p.ID, auth.User.ID)
	require.NotNil(t, auth.Psychologist)
	assert.Equal(t, p.PsychologistID, auth.Psychologist.ID)
	assert.False(t, auth.ExpiresAt.IsZero())
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := setupTestServer(t)

	rr, _ := s.call(http.MethodGet, "/api/children", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = s.call(http.MethodGet, "/api/users/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout(t *testing.T) {
	s := setupTestServer(t)
	parent := s.register(model.RoleCustomer, "parent@example.com")

	resp := s.mustCall(http.StatusOK, http.MethodPost, "/api/auth/logout", parent.Token, nil)
	assert.True(t, resp.Success)
}

func TestUpdateProfile(t *testing.T) {
	s := setupTestServer(t)
	p := s.register(model.RolePsychologist, "sarah@example.com")

	s.mustCall(http.StatusOK, http.MethodPut, "/api/users/profile", p.Token, map[string]string{"name": "Dr. Sarah Johnson", "phone": "+62 811"})

	var user model.User
	require.NoError(t, s.db.Take(&user, p.ID).Error)
	assert.Equal(t, "Dr. Sarah Johnson", user.Name)
	assert.Equal(t, "+62 811", user.Phone)

	var profile model.Psychologist
	require.NoError(t, s.db.Where("id = ?", p.PsychologistID).Take(&profile).Error)
	assert.Equal(t, "Dr. Sarah Johnson", profile.Name)

	rr, _ := s.call(http.MethodPut, "/api/users/profile", p.Token, map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
