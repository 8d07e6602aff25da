package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenOA/formflow/internal/approval/model"
)

// FlowService manages approval flow definitions and their node chains.
type FlowService struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewFlowService(db *gorm.DB) *FlowService {
	return &FlowService{
		db:       db,
		validate: validator.New(),
	}
}

// ListFlowsQuery filters and paginates the flow listing.
type ListFlowsQuery struct {
	Offset  int
	Limit   int
	Enabled *bool
	FormID  *uuid.UUID
}

// CreateFlow validates and persists a new flow with its nodes.
func (s *FlowService) CreateFlow(ctx context.Context, req *model.CreateFlowDTO, actor uuid.UUID) (*model.Flow, error) {
	if req == nil {
		return nil, fmt.Errorf("create request cannot be nil")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid flow definition: %w", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	var flow *model.Flow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if enabled {
			if err := s.checkEnabledConflict(ctx, tx, req.FormID, uuid.Nil); err != nil {
				return err
			}
		}

		flow = &model.Flow{
			Name:        req.Name,
			Description: req.Description,
			FormID:      req.FormID,
			Enabled:     enabled,
			CreatedBy:   actor,
			UpdatedBy:   actor,
		}
		if err := tx.Create(flow).Error; err != nil {
			return fmt.Errorf("failed to create flow: %w", err)
		}

		for _, input := range req.Nodes {
			node := nodeFromInput(flow.ID, input)
			if err := tx.Create(&node).Error; err != nil {
				return fmt.Errorf("failed to create node %q: %w", input.Name, err)
			}
			flow.Nodes = append(flow.Nodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNodes(flow.Nodes)
	return flow, nil
}

// GetFlow retrieves a flow with its nodes in sequencing order.
func (s *FlowService) GetFlow(ctx context.Context, flowID uuid.UUID) (*model.Flow, error) {
	return s.getFlowInTx(ctx, s.db, flowID)
}

func (s *FlowService) getFlowInTx(ctx context.Context, tx *gorm.DB, flowID uuid.UUID) (*model.Flow, error) {
	if flowID == uuid.Nil {
		return nil, fmt.Errorf("flow ID cannot be nil")
	}

	var flow model.Flow
	result := tx.WithContext(ctx).Preload("Nodes").First(&flow, "id = ?", flowID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to retrieve flow: %w", result.Error)
	}

	sortNodes(flow.Nodes)
	return &flow, nil
}

// ListFlows returns a page of flows and the total count for the filter.
func (s *FlowService) ListFlows(ctx context.Context, query ListFlowsQuery) ([]model.Flow, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Flow{})
	if query.Enabled != nil {
		q = q.Where("enabled = ?", *query.Enabled)
	}
	if query.FormID != nil {
		q = q.Where("form_id = ?", *query.FormID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count flows: %w", err)
	}

	var flows []model.Flow
	result := q.Preload("Nodes").
		Order("created_at desc").
		Offset(query.Offset).
		Limit(query.Limit).
		Find(&flows)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list flows: %w", result.Error)
	}

	for i := range flows {
		sortNodes(flows[i].Nodes)
	}
	return flows, total, nil
}

// UpdateFlow applies partial field updates and, when the payload carries a
// node list, reconciles the stored node set against it by identity: nodes
// with an ID are updated in place, nodes without one are created, and stored
// nodes missing from the payload are deleted.
func (s *FlowService) UpdateFlow(ctx context.Context, flowID uuid.UUID, req *model.UpdateFlowDTO, actor uuid.UUID) (*model.Flow, error) {
	if req == nil {
		return nil, fmt.Errorf("update request cannot be nil")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid flow update: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flow, err := s.getFlowInTx(ctx, tx, flowID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			flow.Name = *req.Name
		}
		if req.Description != nil {
			flow.Description = *req.Description
		}
		if req.Enabled != nil {
			if *req.Enabled && !flow.Enabled {
				if err := s.checkEnabledConflict(ctx, tx, flow.FormID, flow.ID); err != nil {
					return err
				}
			}
			flow.Enabled = *req.Enabled
		}
		flow.UpdatedBy = actor

		if err := tx.Omit("Nodes").Save(flow).Error; err != nil {
			return fmt.Errorf("failed to update flow: %w", err)
		}

		if req.Nodes != nil {
			if err := s.reconcileNodes(ctx, tx, flow, *req.Nodes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetFlow(ctx, flowID)
}

// DeleteFlow removes a flow and its nodes.
func (s *FlowService) DeleteFlow(ctx context.Context, flowID uuid.UUID) error {
	if flowID == uuid.Nil {
		return fmt.Errorf("flow ID cannot be nil")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var flow model.Flow
		if err := tx.First(&flow, "id = ?", flowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFlowNotFound
			}
			return fmt.Errorf("failed to retrieve flow: %w", err)
		}
		if err := tx.Where("flow_id = ?", flowID).Delete(&model.Node{}).Error; err != nil {
			return fmt.Errorf("failed to delete flow nodes: %w", err)
		}
		if err := tx.Delete(&flow).Error; err != nil {
			return fmt.Errorf("failed to delete flow: %w", err)
		}
		return nil
	})
}

// EnabledFlowForForm returns the enabled flow attached to a form, or
// ErrFlowNotFound when the form has none.
func (s *FlowService) EnabledFlowForForm(ctx context.Context, formID uuid.UUID) (*model.Flow, error) {
	if formID == uuid.Nil {
		return nil, fmt.Errorf("form ID cannot be nil")
	}

	var flow model.Flow
	result := s.db.WithContext(ctx).Preload("Nodes").
		Where("form_id = ? AND enabled = ?", formID, true).
		First(&flow)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to retrieve flow for form: %w", result.Error)
	}

	sortNodes(flow.Nodes)
	return &flow, nil
}

// reconcileNodes performs the three-way diff between the stored node set and
// the incoming payload. Stored nodes whose incoming entry is identical are
// left untouched, so re-sending the current node set changes nothing.
func (s *FlowService) reconcileNodes(ctx context.Context, tx *gorm.DB, flow *model.Flow, incoming []model.NodeInput) error {
	existing := make(map[uuid.UUID]*model.Node, len(flow.Nodes))
	for i := range flow.Nodes {
		existing[flow.Nodes[i].ID] = &flow.Nodes[i]
	}

	kept := make(map[uuid.UUID]bool, len(incoming))
	for _, input := range incoming {
		if input.ID != nil {
			node, ok := existing[*input.ID]
			if !ok {
				return fmt.Errorf("node %s: %w", *input.ID, ErrNodeNotFound)
			}
			kept[node.ID] = true
			if nodeMatchesInput(node, input) {
				continue
			}
			applyNodeInput(node, input)
			if err := tx.Save(node).Error; err != nil {
				return fmt.Errorf("failed to update node %s: %w", node.ID, err)
			}
			continue
		}

		node := nodeFromInput(flow.ID, input)
		if err := tx.Create(&node).Error; err != nil {
			return fmt.Errorf("failed to create node %q: %w", input.Name, err)
		}
		kept[node.ID] = true
	}

	var toDelete []uuid.UUID
	for id := range existing {
		if !kept[id] {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) > 0 {
		if err := tx.Where("id IN ?", toDelete).Delete(&model.Node{}).Error; err != nil {
			return fmt.Errorf("failed to delete removed nodes: %w", err)
		}
	}
	return nil
}

// checkEnabledConflict enforces the one-enabled-flow-per-form invariant.
func (s *FlowService) checkEnabledConflict(ctx context.Context, tx *gorm.DB, formID uuid.UUID, excludeFlowID uuid.UUID) error {
	var count int64
	q := tx.WithContext(ctx).Model(&model.Flow{}).
		Where("form_id = ? AND enabled = ?", formID, true)
	if excludeFlowID != uuid.Nil {
		q = q.Where("id <> ?", excludeFlowID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check for enabled flows: %w", err)
	}
	if count > 0 {
		return ErrFlowConflict
	}
	return nil
}

func nodeFromInput(flowID uuid.UUID, input model.NodeInput) model.Node {
	node := model.Node{
		FlowID:         flowID,
		Name:           input.Name,
		Kind:           input.Kind,
		ApproverType:   input.ApproverType,
		ApproverTarget: input.ApproverTarget,
		Conditions:     input.Conditions,
		SortOrder:      input.SortOrder,
		Enabled:        true,
	}
	if input.Enabled != nil {
		node.Enabled = *input.Enabled
	}
	return node
}

func applyNodeInput(node *model.Node, input model.NodeInput) {
	node.Name = input.Name
	node.Kind = input.Kind
	node.ApproverType = input.ApproverType
	node.ApproverTarget = input.ApproverTarget
	node.Conditions = input.Conditions
	node.SortOrder = input.SortOrder
	if input.Enabled != nil {
		node.Enabled = *input.Enabled
	}
}

// nodeMatchesInput reports whether the stored node already reflects the input.
func nodeMatchesInput(node *model.Node, input model.NodeInput) bool {
	if node.Name != input.Name ||
		node.Kind != input.Kind ||
		node.ApproverType != input.ApproverType ||
		node.ApproverTarget != input.ApproverTarget ||
		node.SortOrder != input.SortOrder {
		return false
	}
	if input.Enabled != nil && node.Enabled != *input.Enabled {
		return false
	}
	if len(node.Conditions) != len(input.Conditions) {
		return false
	}
	for i := range node.Conditions {
		if node.Conditions[i] != input.Conditions[i] {
			return false
		}
	}
	return true
}
