package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocial_FullFriendFlow(t *testing.T) {
	ts := NewTestServer(t)

	tokenA, idA := ts.Login(t, UniqueID("alice"), "password1")
	tokenB, idB := ts.Login(t, UniqueID("bob"), "password2")

	// A sends a request to B.
	resp := ts.PostJSON(t, "/api/social/requests",
		map[string]string{"receiver_id": idB}, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// B sees it pending.
	resp = ts.Get(t, "/api/social/requests", tokenB)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending struct {
		Requests []struct {
			Sender   string `json:"sender"`
			Receiver string `json:"receiver"`
		} `json:"requests"`
	}
	ReadJSON(t, resp, &pending)
	require.Len(t, pending.Requests, 1)
	assert.Equal(t, idA, pending.Requests[0].Sender)

	// B accepts; both sides now list each other.
	resp = ts.PostJSON(t, "/api/social/requests/"+idA+"/accept", nil, tokenB)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	for _, tok := range []string{tokenA, tokenB} {
		resp = ts.Get(t, "/api/social/friends", tok)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var friends struct {
			Friends []struct {
				UserID string `json:"user_id"`
				Online bool   `json:"online"`
			} `json:"friends"`
		}
		ReadJSON(t, resp, &friends)
		require.Len(t, friends.Friends, 1)
		// Both logged in through the API, so presence shows online.
		assert.True(t, friends.Friends[0].Online)
	}

	// A second accept reports not found and nothing duplicates.
	resp = ts.PostJSON(t, "/api/social/requests/"+idA+"/accept", nil, tokenB)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// The store stays clean under the sweep.
	resp = ts.AdminGet(t, "/api/admin/sweep")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sweep struct {
		Count int `json:"count"`
	}
	ReadJSON(t, resp, &sweep)
	assert.Zero(t, sweep.Count)
}

func TestSocial_DuplicateRequestRejected(t *testing.T) {
	ts := NewTestServer(t)

	tokenA, _ := ts.Login(t, UniqueID("alice"), "password1")
	tokenB, idB := ts.Login(t, UniqueID("bob"), "password2")

	resp := ts.PostJSON(t, "/api/social/requests",
		map[string]string{"receiver_id": idB}, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Same direction again.
	resp = ts.PostJSON(t, "/api/social/requests",
		map[string]string{"receiver_id": idB}, tokenA)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Opposite direction counts as the same pair.
	var me struct {
		Requests []struct {
			Sender string `json:"sender"`
		} `json:"requests"`
	}
	r := ts.Get(t, "/api/social/requests", tokenB)
	ReadJSON(t, r, &me)
	require.Len(t, me.Requests, 1)
	resp = ts.PostJSON(t, "/api/social/requests",
		map[string]string{"receiver_id": me.Requests[0].Sender}, tokenB)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSocial_DeclineLeavesNoFriendship(t *testing.T) {
	ts := NewTestServer(t)

	tokenA, idA := ts.Login(t, UniqueID("alice"), "password1")
	tokenB, idB := ts.Login(t, UniqueID("bob"), "password2")

	resp := ts.PostJSON(t, "/api/social/requests",
		map[string]string{"receiver_id": idB}, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, "/api/social/requests/"+idA+"/decline", nil, tokenB)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/social/friends", tokenB)
	var friends struct {
		Friends []interface{} `json:"friends"`
	}
	ReadJSON(t, resp, &friends)
	assert.Empty(t, friends.Friends)

	// Sender can re-send after a decline.
	resp = ts.PostJSON(t, "/api/social/requests",
		map[string]string{"receiver_id": idB}, tokenA)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	ts := NewTestServer(t)
	resp := ts.Get(t, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
