package router

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/approval/service"
)

const maxCommentLength = 2000

type RecordRouter struct {
	rs     *service.RecordService
	engine *service.Engine
}

func NewRecordRouter(rs *service.RecordService, engine *service.Engine) *RecordRouter {
	return &RecordRouter{
		rs:     rs,
		engine: engine,
	}
}

// HandleGetRecord handles GET /api/approval-records/{recordID}
func (rr *RecordRouter) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, ok := pathUUID(w, r, "recordID")
	if !ok {
		return
	}

	record, err := rr.rs.GetRecord(r.Context(), recordID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get approval record: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleDecide handles POST /api/approval-records/{recordID}/decide
// Request body: DecideDTO
func (rr *RecordRouter) HandleDecide(w http.ResponseWriter, r *http.Request) {
	recordID, ok := pathUUID(w, r, "recordID")
	if !ok {
		return
	}

	var req model.DecideDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if !req.Action.Valid() {
		http.Error(w, fmt.Sprintf("invalid action %q, must be approve or reject", req.Action), http.StatusBadRequest)
		return
	}
	if len(req.Comment) > maxCommentLength {
		http.Error(w, fmt.Sprintf("comment exceeds %d characters", maxCommentLength), http.StatusBadRequest)
		return
	}

	result, err := rr.engine.Decide(r.Context(), recordID, req.Action, req.Comment)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to decide approval record: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleListPendingForApprover handles GET /api/approval-records?approverId={approverId}
// approverId is required.
func (rr *RecordRouter) HandleListPendingForApprover(w http.ResponseWriter, r *http.Request) {
	approverID, ok := queryUUID(w, r, "approverId")
	if !ok {
		return
	}

	records, err := rr.rs.PendingForApprover(r.Context(), approverID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list pending records: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// HandleSubmissionHistory handles GET /api/submissions/{submissionID}/records
// Response: records for the submission ordered by creation time.
func (rr *RecordRouter) HandleSubmissionHistory(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := pathUUID(w, r, "submissionID")
	if !ok {
		return
	}

	records, err := rr.rs.History(r.Context(), submissionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get approval history: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func queryUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, fmt.Sprintf("missing %s query parameter", name), http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s: %v", name, err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
