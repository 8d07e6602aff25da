package wecom

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/approval/service"
)

// Decider applies an external status change to the record it references.
type Decider interface {
	DecideByExternalRef(ctx context.Context, spNo string, status model.RecordStatus, comment string) (*service.DecisionResult, error)
}

// CallbackHandler receives WeCom approval status change events and applies
// them to the matching record.
type CallbackHandler struct {
	decider Decider
	token   string
}

func NewCallbackHandler(decider Decider, token string) *CallbackHandler {
	return &CallbackHandler{decider: decider, token: token}
}

// Approval status codes delivered by sys_approval_change events.
const (
	spStatusApproved = 1
	spStatusRejected = 2
)

type callbackEvent struct {
	Event        string `json:"Event"`
	ApprovalInfo struct {
		SpNo     string `json:"SpNo"`
		SpStatus int    `json:"SpStatus"`
		Comments string `json:"Comments"`
	} `json:"ApprovalInfo"`
}

// authorized checks the shared callback token when one is configured.
func (h *CallbackHandler) authorized(r *http.Request) bool {
	return h.token == "" || r.URL.Query().Get("token") == h.token
}

// Verify answers the platform's URL verification probe by echoing the
// challenge string.
func (h *CallbackHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	echo := r.URL.Query().Get("echostr")
	if echo == "" {
		http.Error(w, "missing echostr", http.StatusBadRequest)
		return
	}
	w.Write([]byte(echo))
}

// Receive handles a posted status change event. Events other than
// sys_approval_change, and statuses that are not terminal, are acknowledged
// without any effect.
func (h *CallbackHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	var event callbackEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid callback payload", http.StatusBadRequest)
		return
	}

	if event.Event != "sys_approval_change" {
		w.Write([]byte("success"))
		return
	}

	var status model.RecordStatus
	switch event.ApprovalInfo.SpStatus {
	case spStatusApproved:
		status = model.RecordStatusApproved
	case spStatusRejected:
		status = model.RecordStatusRejected
	default:
		w.Write([]byte("success"))
		return
	}

	_, err := h.decider.DecideByExternalRef(r.Context(), event.ApprovalInfo.SpNo, status, event.ApprovalInfo.Comments)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			slog.WarnContext(r.Context(), "callback references unknown record",
				"sp_no", event.ApprovalInfo.SpNo,
			)
		case errors.Is(err, service.ErrAlreadyDecided):
			// A repeated delivery of an event already applied.
		default:
			slog.ErrorContext(r.Context(), "failed to apply callback decision",
				"sp_no", event.ApprovalInfo.SpNo,
				"error", err,
			)
			http.Error(w, "failed to process callback", http.StatusInternalServerError)
			return
		}
	}

	// The platform retries unless it reads this exact body.
	w.Write([]byte("success"))
}
