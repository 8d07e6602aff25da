package service

import (
	"bytes"
	"sort"

	"github.com/OpenOA/formflow/internal/approval/model"
)

// sortNodes orders nodes by ascending sort order, with ties broken by
// ascending ID (byte order), so sequencing is deterministic even when order
// values repeat. Sorting happens in memory to keep the tie-break independent
// of database collation.
func sortNodes(nodes []model.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return bytes.Compare(nodes[i].ID[:], nodes[j].ID[:]) < 0
	})
}

// firstEligibleNode returns the lowest-ordered enabled node whose conditions
// hold for the submission values, or nil when no node is eligible.
func firstEligibleNode(nodes []model.Node, values map[string]any) *model.Node {
	sortNodes(nodes)
	for i := range nodes {
		if !nodes[i].Enabled {
			continue
		}
		if nodes[i].EligibleFor(values) {
			return &nodes[i]
		}
	}
	return nil
}

// nextEligibleNode returns the lowest-ordered enabled node with a sort order
// strictly greater than the current node's whose conditions hold, or nil when
// the chain is exhausted. Nodes sharing the current node's order value are
// never revisited.
func nextEligibleNode(nodes []model.Node, current *model.Node, values map[string]any) *model.Node {
	sortNodes(nodes)
	for i := range nodes {
		if nodes[i].SortOrder <= current.SortOrder {
			continue
		}
		if !nodes[i].Enabled {
			continue
		}
		if nodes[i].EligibleFor(values) {
			return &nodes[i]
		}
	}
	return nil
}
