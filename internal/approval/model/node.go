package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/OpenOA/formflow/internal/directory"
)

// NodeKind distinguishes decision steps from informational ones.
type NodeKind string

const (
	NodeKindApproval NodeKind = "approval" // Requires an approve/reject decision
	NodeKindNotify   NodeKind = "notify"   // Informational, approver is only notified
)

// Valid reports whether the node kind is one of the known variants.
func (k NodeKind) Valid() bool {
	return k == NodeKindApproval || k == NodeKindNotify
}

// Operator is a condition comparison operator.
type Operator string

const (
	OperatorGT          Operator = ">"
	OperatorLT          Operator = "<"
	OperatorGTE         Operator = ">="
	OperatorLTE         Operator = "<="
	OperatorEQ          Operator = "=="
	OperatorNEQ         Operator = "!="
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
)

// Valid reports whether the operator is one of the known variants.
func (op Operator) Valid() bool {
	switch op {
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE,
		OperatorEQ, OperatorNEQ,
		OperatorIn, OperatorNotIn,
		OperatorContains, OperatorNotContains:
		return true
	}
	return false
}

// Condition gates a node on one submission field value.
// For "in"/"not_in" the value is a comma-separated list of candidates.
type Condition struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=> < >= <= == != in not_in contains not_contains"`
	Value    string   `json:"value" validate:"required"`
}

// Conditions is an ordered list of conditions stored as a JSON column.
// All conditions are AND-ed.
type Conditions []Condition

// Node is one step in an approval flow.
type Node struct {
	BaseModel
	FlowID         uuid.UUID              `gorm:"type:uuid;column:flow_id;not null;index:idx_nodes_flow_order" json:"flowId"`
	Name           string                 `gorm:"type:varchar(50);column:name;not null" json:"name"`
	Kind           NodeKind               `gorm:"type:varchar(20);column:kind;not null" json:"kind"`
	ApproverType   directory.ApproverType `gorm:"type:varchar(20);column:approver_type;not null" json:"approverType"`
	ApproverTarget string                 `gorm:"type:varchar(64);column:approver_id;not null" json:"approverId"`
	Conditions     Conditions             `gorm:"type:jsonb;column:conditions;serializer:json" json:"conditions,omitempty"`
	SortOrder      int                    `gorm:"type:integer;column:sort_order;not null;default:0;index:idx_nodes_flow_order" json:"order"`
	Enabled        bool                   `gorm:"type:boolean;column:enabled;not null;default:true" json:"enabled"`
}

func (n *Node) TableName() string {
	return "approval_nodes"
}

// IsApproval reports whether the node requires a decision.
func (n *Node) IsApproval() bool {
	return n.Kind == NodeKindApproval
}

// EligibleFor reports whether the node participates in routing for the given
// submission values. A node with no conditions is always eligible.
func (n *Node) EligibleFor(values map[string]any) bool {
	return n.Conditions.Evaluate(values)
}

// Evaluate applies all conditions against the submission values, AND-ed,
// short-circuiting on the first failure. An empty list evaluates to true.
func (cs Conditions) Evaluate(values map[string]any) bool {
	for _, c := range cs {
		var fieldValue any
		if values != nil {
			fieldValue = values[c.Field]
		}
		if !c.Matches(fieldValue) {
			return false
		}
	}
	return true
}

// Matches evaluates a single condition against a field value.
// Ordering operators compare numerically when both sides parse as numbers,
// otherwise lexically. An unknown operator never matches.
func (c Condition) Matches(fieldValue any) bool {
	fv := stringify(fieldValue)

	switch c.Operator {
	case OperatorGT:
		return looseCompare(fv, c.Value) > 0
	case OperatorLT:
		return looseCompare(fv, c.Value) < 0
	case OperatorGTE:
		return looseCompare(fv, c.Value) >= 0
	case OperatorLTE:
		return looseCompare(fv, c.Value) <= 0
	case OperatorEQ:
		return looseCompare(fv, c.Value) == 0
	case OperatorNEQ:
		return looseCompare(fv, c.Value) != 0
	case OperatorIn:
		return inList(fv, c.Value)
	case OperatorNotIn:
		return !inList(fv, c.Value)
	case OperatorContains:
		return strings.Contains(fv, c.Value)
	case OperatorNotContains:
		return !strings.Contains(fv, c.Value)
	default:
		return false
	}
}

// stringify renders a field value the way it would appear in a condition
// literal. JSON numbers arrive as float64; integral values drop the decimal
// point so "1000" compares equal to 1000.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// looseCompare returns -1, 0 or 1. Both operands are compared as numbers when
// both parse as numbers, otherwise as strings.
func looseCompare(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// inList tests membership of value in a comma-separated candidate list.
func inList(value, list string) bool {
	for _, candidate := range strings.Split(list, ",") {
		if strings.TrimSpace(candidate) == value {
			return true
		}
	}
	return false
}
