package plaid

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	err   error
	calls int
}

func (f *fakeExchanger) ExchangePublicToken(_ context.Context, publicToken string) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return "access-" + publicToken, "item-1", nil
}

func TestLinkServer_Page(t *testing.T) {
	s := NewLinkServer("link-sandbox-123", &fakeExchanger{}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"link-sandbox-123"`, "token is embedded as a JS string")

	missing, err := http.Get(srv.URL + "/other")
	require.NoError(t, err)
	_ = missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestLinkServer_Exchange(t *testing.T) {
	ex := &fakeExchanger{}
	s := NewLinkServer("tok", ex, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	body := `{"public_token":"pub-1","metadata":{"institution":{"name":"HDFC"},"accounts":[{"id":"a1","name":"Savings","type":"depository","mask":"0001"}]}}`
	resp, err := http.Post(srv.URL+"/exchange", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-pub-1", result.AccessToken)
	assert.Equal(t, "item-1", result.ItemID)
	assert.Equal(t, "HDFC", result.InstitutionName)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "0001", result.Accounts[0].Mask)

	again, err := http.Post(srv.URL+"/exchange", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = again.Body.Close()
	assert.Equal(t, http.StatusOK, again.StatusCode, "repeat completions are accepted and ignored")
}

func TestLinkServer_ExchangeErrors(t *testing.T) {
	t.Run("bad request", func(t *testing.T) {
		ex := &fakeExchanger{}
		srv := httptest.NewServer(NewLinkServer("tok", ex, nil).Handler())
		t.Cleanup(srv.Close)

		resp, err := http.Post(srv.URL+"/exchange", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Zero(t, ex.calls)
	})

	t.Run("exchange failure ends the session", func(t *testing.T) {
		s := NewLinkServer("tok", &fakeExchanger{err: errors.New("INVALID_PUBLIC_TOKEN")}, nil)
		srv := httptest.NewServer(s.Handler())
		t.Cleanup(srv.Close)

		resp, err := http.Post(srv.URL+"/exchange", "application/json", strings.NewReader(`{"public_token":"bad"}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		_, err = s.Wait(context.Background())
		assert.ErrorContains(t, err, "INVALID_PUBLIC_TOKEN")
	})

	t.Run("wait honors context", func(t *testing.T) {
		s := NewLinkServer("tok", &fakeExchanger{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
