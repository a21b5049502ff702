package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestRoleChatHandler(t *testing.T) {
	env := newTestEnv(t)

	mux := chi.NewRouter()
	mux.Post("/roles/{roleID}/chat", RoleChatHandler(env.deps))

	post := func(roleID, body string, orgID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/roles/"+roleID+"/chat", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, withTenant(req, orgID))
		return rec
	}

	t.Run("routes to the role's model", func(t *testing.T) {
		rec := post(env.roleID.String(), `{"messages":[{"role":"user","content":"Status report?"}]}`, env.orgID)

		require.Equal(t, http.StatusOK, rec.Code)
		var result router.Result
		decodeData(t, rec, &result)
		assert.Equal(t, "All systems green.", result.Response)
		assert.Equal(t, "openai", result.Provider)
		assert.Equal(t, "gpt-4o", result.ModelID)
		assert.Equal(t, "CTO", result.RoleName)
		assert.Equal(t, int64(1000), result.TotalTokens)

		sub, err := env.subs.GetByOrgID(context.Background(), env.orgID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), sub.CurrentTokenUsage)
	})

	t.Run("unknown role", func(t *testing.T) {
		rec := post(uuid.NewString(), `{"messages":[{"role":"user","content":"hi"}]}`, env.orgID)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid role id", func(t *testing.T) {
		rec := post("not-a-uuid", `{"messages":[{"role":"user","content":"hi"}]}`, env.orgID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty messages", func(t *testing.T) {
		rec := post(env.roleID.String(), `{"messages":[]}`, env.orgID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid message role", func(t *testing.T) {
		rec := post(env.roleID.String(), `{"messages":[{"role":"robot","content":"hi"}]}`, env.orgID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := post(env.roleID.String(), `{"messages":`, env.orgID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/roles/"+env.roleID.String()+"/chat",
			strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("quota exhausted", func(t *testing.T) {
		env := newTestEnv(t)
		env.subs.subs[env.orgID].CurrentTokenUsage = env.subs.subs[env.orgID].MonthlyQuota()

		mux := chi.NewRouter()
		mux.Post("/roles/{roleID}/chat", RoleChatHandler(env.deps))
		req := httptest.NewRequest(http.MethodPost, "/roles/"+env.roleID.String()+"/chat",
			strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, withTenant(req, env.orgID))

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Contains(t, rec.Body.String(), "quota_exceeded")
	})

	t.Run("provider failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.err = services.ErrProviderCall

		mux := chi.NewRouter()
		mux.Post("/roles/{roleID}/chat", RoleChatHandler(env.deps))
		req := httptest.NewRequest(http.MethodPost, "/roles/"+env.roleID.String()+"/chat",
			strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, withTenant(req, env.orgID))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestModelChatHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := ModelChatHandler(env.deps)

	t.Run("routes to the named model", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat",
			strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
		rec := httptest.NewRecorder()
		handler(rec, withTenant(req, env.orgID))

		require.Equal(t, http.StatusOK, rec.Code)
		var result router.Result
		decodeData(t, rec, &result)
		assert.Equal(t, "gpt-4o", result.ModelID)
		assert.Empty(t, result.RoleName)
	})

	t.Run("unknown model", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat",
			strings.NewReader(`{"model":"no-such-model","messages":[{"role":"user","content":"hi"}]}`))
		rec := httptest.NewRecorder()
		handler(rec, withTenant(req, env.orgID))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing model field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat",
			strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
		rec := httptest.NewRecorder()
		handler(rec, withTenant(req, env.orgID))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
