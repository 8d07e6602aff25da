package wecom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/approval/service"
)

type fakeDecider struct {
	spNo    string
	status  model.RecordStatus
	comment string
	calls   int
	err     error
}

func (f *fakeDecider) DecideByExternalRef(ctx context.Context, spNo string, status model.RecordStatus, comment string) (*service.DecisionResult, error) {
	f.calls++
	f.spNo = spNo
	f.status = status
	f.comment = comment
	if f.err != nil {
		return nil, f.err
	}
	return &service.DecisionResult{}, nil
}

func postEvent(h *CallbackHandler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Receive(w, req)
	return w
}

func TestCallbackVerify(t *testing.T) {
	h := NewCallbackHandler(&fakeDecider{}, "")

	t.Run("Echoes Challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/wecom/callback?echostr=ping", nil)
		w := httptest.NewRecorder()
		h.Verify(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ping", w.Body.String())
	})

	t.Run("Missing Challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/wecom/callback", nil)
		w := httptest.NewRecorder()
		h.Verify(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCallbackReceive(t *testing.T) {
	t.Run("Approved Status Applies Decision", func(t *testing.T) {
		decider := &fakeDecider{}
		h := NewCallbackHandler(decider, "")

		w := postEvent(h, "/api/wecom/callback",
			`{"Event":"sys_approval_change","ApprovalInfo":{"SpNo":"SP-1","SpStatus":1,"Comments":"ok"}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "success", w.Body.String())
		require.Equal(t, 1, decider.calls)
		assert.Equal(t, "SP-1", decider.spNo)
		assert.Equal(t, model.RecordStatusApproved, decider.status)
		assert.Equal(t, "ok", decider.comment)
	})

	t.Run("Rejected Status Applies Decision", func(t *testing.T) {
		decider := &fakeDecider{}
		h := NewCallbackHandler(decider, "")

		postEvent(h, "/api/wecom/callback",
			`{"Event":"sys_approval_change","ApprovalInfo":{"SpNo":"SP-2","SpStatus":2}}`)
		require.Equal(t, 1, decider.calls)
		assert.Equal(t, model.RecordStatusRejected, decider.status)
	})

	t.Run("Other Events Are Acknowledged Untouched", func(t *testing.T) {
		decider := &fakeDecider{}
		h := NewCallbackHandler(decider, "")

		w := postEvent(h, "/api/wecom/callback", `{"Event":"change_contact"}`)
		assert.Equal(t, "success", w.Body.String())
		assert.Zero(t, decider.calls)
	})

	t.Run("Non Terminal Status Is Ignored", func(t *testing.T) {
		decider := &fakeDecider{}
		h := NewCallbackHandler(decider, "")

		w := postEvent(h, "/api/wecom/callback",
			`{"Event":"sys_approval_change","ApprovalInfo":{"SpNo":"SP-3","SpStatus":4}}`)
		assert.Equal(t, "success", w.Body.String())
		assert.Zero(t, decider.calls)
	})

	t.Run("Duplicate Delivery Still Acknowledged", func(t *testing.T) {
		decider := &fakeDecider{err: service.ErrAlreadyDecided}
		h := NewCallbackHandler(decider, "")

		w := postEvent(h, "/api/wecom/callback",
			`{"Event":"sys_approval_change","ApprovalInfo":{"SpNo":"SP-4","SpStatus":1}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "success", w.Body.String())
	})

	t.Run("Malformed Payload", func(t *testing.T) {
		h := NewCallbackHandler(&fakeDecider{}, "")
		w := postEvent(h, "/api/wecom/callback", `{not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Token Mismatch Is Forbidden", func(t *testing.T) {
		decider := &fakeDecider{}
		h := NewCallbackHandler(decider, "s3cret")

		w := postEvent(h, "/api/wecom/callback?token=wrong",
			`{"Event":"sys_approval_change","ApprovalInfo":{"SpNo":"SP-5","SpStatus":1}}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Zero(t, decider.calls)

		w = postEvent(h, "/api/wecom/callback?token=s3cret",
			`{"Event":"sys_approval_change","ApprovalInfo":{"SpNo":"SP-5","SpStatus":1}}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, decider.calls)
	})
}
