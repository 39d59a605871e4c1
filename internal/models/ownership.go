package models

import "strings"

// NodeType is the level of a node in the ownership hierarchy.
type NodeType string

const (
	NodeTypeAccount   NodeType = "account"
	NodeTypePortfolio NodeType = "portfolio"
	NodeTypeGroup     NodeType = "group"
	NodeTypeClient    NodeType = "client"
	NodeTypeRoot      NodeType = "root" // synthetic "All Clients"
)

// DefaultGroupName is used for portfolios whose ownership row carries no group.
const DefaultGroupName = "Ungrouped"

// AllClientsID is the node id of the synthetic root spanning every client.
const AllClientsID = "root:all"

// Rank orders levels from leaf (0) to root (4).
func (t NodeType) Rank() int {
	switch t {
	case NodeTypeAccount:
		return 0
	case NodeTypePortfolio:
		return 1
	case NodeTypeGroup:
		return 2
	case NodeTypeClient:
		return 3
	case NodeTypeRoot:
		return 4
	default:
		return -1
	}
}

// ParseNodeType accepts level names case-insensitively; "all" and "root" map to the synthetic root.
func ParseNodeType(s string) (NodeType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "account":
		return NodeTypeAccount, true
	case "portfolio":
		return NodeTypePortfolio, true
	case "group":
		return NodeTypeGroup, true
	case "client":
		return NodeTypeClient, true
	case "all", "root":
		return NodeTypeRoot, true
	default:
		return "", false
	}
}

// OwnershipRow is one row of the ownership source as delivered by the
// upstream reconciliation step.
type OwnershipRow struct {
	HoldingAccount       string `json:"holding_account"`
	HoldingAccountNumber string `json:"holding_account_number"`
	TopLevelClient       string `json:"top_level_client"`
	EntityID             string `json:"entity_id"`
	Portfolio            string `json:"portfolio"`
	Groups               string `json:"groups,omitempty"`
}

// OwnershipNode is a node of the ownership forest.
type OwnershipNode struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	ParentID    string   `json:"parent_id,omitempty"`
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
}

// OwnershipTree is the nested rendering returned to callers.
type OwnershipTree struct {
	ID          string           `json:"id"`
	Type        NodeType         `json:"type"`
	Key         string           `json:"key"`
	DisplayName string           `json:"display_name"`
	EntityID    string           `json:"entity_id,omitempty"`
	Children    []*OwnershipTree `json:"children,omitempty"`
}
