package wecom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenOA/formflow/internal/config"
)

type fakeWeComAPI struct {
	tokenCalls   int
	messageCalls int
	lastMessage  messageRequest
	rejectToken  string
}

func (f *fakeWeComAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gettoken", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: fmt.Sprintf("token-%d", f.tokenCalls),
			ExpiresIn:   7200,
		})
	})
	mux.HandleFunc("POST /message/send", func(w http.ResponseWriter, r *http.Request) {
		f.messageCalls++
		json.NewDecoder(r.Body).Decode(&f.lastMessage)
		if f.rejectToken != "" && r.URL.Query().Get("access_token") == f.rejectToken {
			json.NewEncoder(w).Encode(apiResponse{ErrCode: 42001, ErrMsg: "access_token expired"})
			return
		}
		json.NewEncoder(w).Encode(apiResponse{})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeWeComAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(&config.WeComConfig{
		CorpID:     "corp1",
		Secret:     "secret1",
		AgentID:    42,
		APIBaseURL: srv.URL,
	})
}

func TestAccessTokenCaching(t *testing.T) {
	fake := &fakeWeComAPI{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	first, err := client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", first)

	second, err := client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.tokenCalls)

	client.invalidateToken()
	_, err = client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.tokenCalls)
}

func TestSendTextCard(t *testing.T) {
	fake := &fakeWeComAPI{}
	client := newTestClient(t, fake)

	err := client.SendTextCard(context.Background(), "zhangsan", TextCard{
		Title:       "Approval pending",
		Description: "please review",
		BtnTxt:      "Review",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.messageCalls)
	assert.Equal(t, "zhangsan", fake.lastMessage.ToUser)
	assert.Equal(t, "textcard", fake.lastMessage.MsgType)
	assert.Equal(t, 42, fake.lastMessage.AgentID)
	assert.Equal(t, "Approval pending", fake.lastMessage.TextCard.Title)
}

func TestSendTextCardRetriesExpiredToken(t *testing.T) {
	fake := &fakeWeComAPI{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	// Prime the cache, then have the server reject that exact token.
	stale, err := client.AccessToken(ctx)
	require.NoError(t, err)
	fake.rejectToken = stale

	err = client.SendTextCard(ctx, "zhangsan", TextCard{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.messageCalls)
	assert.Equal(t, 2, fake.tokenCalls)
}
