package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/approval/service"
	"github.com/OpenOA/formflow/utils"
)

type FlowRouter struct {
	fs     *service.FlowService
	engine *service.Engine
	stats  *service.StatisticsService
}

func NewFlowRouter(fs *service.FlowService, engine *service.Engine, stats *service.StatisticsService) *FlowRouter {
	return &FlowRouter{
		fs:     fs,
		engine: engine,
		stats:  stats,
	}
}

// HandleListFlows handles GET /api/approval-flows
// Optional query params: page, limit, enabled, formId
func (fr *FlowRouter) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	var query service.ListFlowsQuery

	var page, limit *int
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			http.Error(w, "invalid 'page' query parameter, must be an integer", http.StatusBadRequest)
			return
		}
		page = &p
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "invalid 'limit' query parameter, must be an integer", http.StatusBadRequest)
			return
		}
		limit = &l
	}
	query.Offset, query.Limit = utils.GetPaginationParams(page, limit)

	if enabledStr := r.URL.Query().Get("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			http.Error(w, "invalid 'enabled' query parameter, must be a boolean", http.StatusBadRequest)
			return
		}
		query.Enabled = &enabled
	}
	if formIDStr := r.URL.Query().Get("formId"); formIDStr != "" {
		formID, err := uuid.Parse(formIDStr)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid formId: %v", err), http.StatusBadRequest)
			return
		}
		query.FormID = &formID
	}

	flows, total, err := fr.fs.ListFlows(r.Context(), query)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list approval flows: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  flows,
		"total": total,
	})
}

// HandleCreateFlow handles POST /api/approval-flows
// Request body: CreateFlowDTO
func (fr *FlowRouter) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req model.CreateFlowDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	flow, err := fr.fs.CreateFlow(r.Context(), &req, actorID(r))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create approval flow: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusCreated, flow)
}

// HandleGetFlow handles GET /api/approval-flows/{flowID}
func (fr *FlowRouter) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	flowID, ok := pathUUID(w, r, "flowID")
	if !ok {
		return
	}

	flow, err := fr.fs.GetFlow(r.Context(), flowID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get approval flow: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, flow)
}

// HandleUpdateFlow handles PUT /api/approval-flows/{flowID}
// Request body: UpdateFlowDTO; nil fields keep their current values.
func (fr *FlowRouter) HandleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	flowID, ok := pathUUID(w, r, "flowID")
	if !ok {
		return
	}

	var req model.UpdateFlowDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	flow, err := fr.fs.UpdateFlow(r.Context(), flowID, &req, actorID(r))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to update approval flow: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, flow)
}

// HandleDeleteFlow handles DELETE /api/approval-flows/{flowID}
func (fr *FlowRouter) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	flowID, ok := pathUUID(w, r, "flowID")
	if !ok {
		return
	}

	if err := fr.fs.DeleteFlow(r.Context(), flowID); err != nil {
		http.Error(w, fmt.Sprintf("failed to delete approval flow: %v", err), statusForError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSubmit handles POST /api/approval-flows/{flowID}/submit
// Request body: SubmitDTO
func (fr *FlowRouter) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	flowID, ok := pathUUID(w, r, "flowID")
	if !ok {
		return
	}

	var req model.SubmitDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	result, err := fr.engine.Submit(r.Context(), flowID, &req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to submit: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// HandleStatistics handles GET /api/approval-flows/{flowID}/statistics
// Optional query param: nodeId narrows the summary to one node.
func (fr *FlowRouter) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	flowID, ok := pathUUID(w, r, "flowID")
	if !ok {
		return
	}

	// The flow must exist even when only a node summary is requested.
	if _, err := fr.fs.GetFlow(r.Context(), flowID); err != nil {
		http.Error(w, fmt.Sprintf("failed to get approval flow: %v", err), statusForError(err))
		return
	}

	var summary *model.StatisticsSummary
	var err error
	if nodeIDStr := r.URL.Query().Get("nodeId"); nodeIDStr != "" {
		nodeID, parseErr := uuid.Parse(nodeIDStr)
		if parseErr != nil {
			http.Error(w, fmt.Sprintf("invalid nodeId: %v", parseErr), http.StatusBadRequest)
			return
		}
		summary, err = fr.stats.NodeStatistics(r.Context(), nodeID)
	} else {
		summary, err = fr.stats.FlowStatistics(r.Context(), flowID)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to compute statistics: %v", err), statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// pathUUID extracts and parses a UUID path value, writing the error response
// itself when the value is missing or malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := r.PathValue(name)
	if raw == "" {
		http.Error(w, fmt.Sprintf("missing %s in path", name), http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s: %v", name, err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// actorID identifies the acting user from the X-User-ID header. Requests
// without the header act as the zero user; authentication happens upstream.
func actorID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return uuid.Nil
	}
	return id
}
