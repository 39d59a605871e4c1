// Package ownership builds and caches the client → group → portfolio → account hierarchy.
package ownership

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// Compile-time interface check
var _ interfaces.Hierarchy = (*Graph)(nil)

// Graph is an immutable, validated ownership forest with a synthetic
// "All Clients" root above every client.
type Graph struct {
	nodes    map[string]*models.OwnershipNode
	children map[string][]string // insertion ordered
	entities map[string]string   // account node id -> entity id
	byKey    map[models.NodeType]map[string][]string
}

func newGraph() *Graph {
	g := &Graph{
		nodes:    make(map[string]*models.OwnershipNode),
		children: make(map[string][]string),
		entities: make(map[string]string),
		byKey:    make(map[models.NodeType]map[string][]string),
	}
	g.nodes[models.AllClientsID] = &models.OwnershipNode{
		ID:          models.AllClientsID,
		Type:        models.NodeTypeRoot,
		Key:         "all",
		DisplayName: "All Clients",
	}
	return g
}

// Node IDs are prefixed by level so keys from different levels never collide.
func clientID(client string) string        { return "client:" + client }
func groupID(client, group string) string  { return "group:" + client + "/" + group }
func portfolioID(portfolio string) string  { return "portfolio:" + portfolio }
func accountID(number string) string       { return "account:" + number }
func groupKey(client, group string) string { return client + "/" + group }

func (g *Graph) add(n *models.OwnershipNode) {
	if _, ok := g.nodes[n.ID]; ok {
		return
	}
	g.nodes[n.ID] = n
	parent := n.ParentID
	if n.Type == models.NodeTypeClient {
		parent = models.AllClientsID
	}
	if parent != "" {
		g.children[parent] = append(g.children[parent], n.ID)
	}
	g.index(n.Type, n.Key, n.ID)
}

func (g *Graph) index(t models.NodeType, key, id string) {
	if g.byKey[t] == nil {
		g.byKey[t] = make(map[string][]string)
	}
	g.byKey[t][key] = append(g.byKey[t][key], id)
}

// Build constructs the hierarchy from ownership rows. Each account is attached
// under its portfolio, its group (DefaultGroupName when empty) and its client.
// Any row whose parentage contradicts an earlier row aborts the build with a
// *models.MalformedHierarchyError listing every conflict found.
func Build(rows []*models.OwnershipRow) (*Graph, error) {
	type placement struct {
		portfolio string
		client    string
		group     string
		row       int
	}

	var conflicts []string
	accounts := make(map[string]placement)
	portfolios := make(map[string]placement)

	for i, r := range rows {
		number := strings.TrimSpace(r.HoldingAccountNumber)
		client := strings.TrimSpace(r.TopLevelClient)
		portfolio := strings.TrimSpace(r.Portfolio)
		group := strings.TrimSpace(r.Groups)
		if group == "" {
			group = models.DefaultGroupName
		}

		if number == "" || client == "" || portfolio == "" {
			conflicts = append(conflicts, fmt.Sprintf("row %d: holding_account_number, top_level_client and portfolio are required", i+1))
			continue
		}

		p := placement{portfolio: portfolio, client: client, group: group, row: i + 1}

		if prev, ok := accounts[number]; ok && prev.portfolio != portfolio {
			conflicts = append(conflicts, fmt.Sprintf("account %s: portfolio %q (row %d) vs %q (row %d)",
				number, prev.portfolio, prev.row, portfolio, p.row))
		} else if !ok {
			accounts[number] = p
		}

		if prev, ok := portfolios[portfolio]; ok {
			if prev.client != client {
				conflicts = append(conflicts, fmt.Sprintf("portfolio %s: client %q (row %d) vs %q (row %d)",
					portfolio, prev.client, prev.row, client, p.row))
			} else if prev.group != group {
				conflicts = append(conflicts, fmt.Sprintf("portfolio %s: group %q (row %d) vs %q (row %d)",
					portfolio, prev.group, prev.row, group, p.row))
			}
		} else {
			portfolios[portfolio] = p
		}
	}

	if len(conflicts) > 0 {
		return nil, &models.MalformedHierarchyError{Reason: "inconsistent ownership rows", Conflicts: conflicts}
	}

	g := newGraph()
	for _, r := range rows {
		number := strings.TrimSpace(r.HoldingAccountNumber)
		client := strings.TrimSpace(r.TopLevelClient)
		portfolio := strings.TrimSpace(r.Portfolio)
		group := strings.TrimSpace(r.Groups)
		if group == "" {
			group = models.DefaultGroupName
		}

		g.add(&models.OwnershipNode{ID: clientID(client), Type: models.NodeTypeClient, Key: client, DisplayName: client})
		g.add(&models.OwnershipNode{
			ID: groupID(client, group), Type: models.NodeTypeGroup, ParentID: clientID(client),
			Key: groupKey(client, group), DisplayName: group,
		})
		g.add(&models.OwnershipNode{
			ID: portfolioID(portfolio), Type: models.NodeTypePortfolio, ParentID: groupID(client, group),
			Key: portfolio, DisplayName: portfolio,
		})

		name := strings.TrimSpace(r.HoldingAccount)
		if name == "" {
			name = number
		}
		acct := &models.OwnershipNode{
			ID: accountID(number), Type: models.NodeTypeAccount, ParentID: portfolioID(portfolio),
			Key: number, DisplayName: name,
		}
		if _, seen := g.nodes[acct.ID]; !seen {
			g.add(acct)
			if e := strings.TrimSpace(r.EntityID); e != "" {
				g.entities[acct.ID] = e
			}
		}
	}

	g.indexBareGroupNames()
	return g, nil
}

// indexBareGroupNames lets a group be addressed by its plain name as well as
// "client/group". Resolve reports ambiguity when a plain name is shared.
func (g *Graph) indexBareGroupNames() {
	for _, id := range g.idsOfType(models.NodeTypeGroup) {
		n := g.nodes[id]
		if n.DisplayName != n.Key {
			g.index(models.NodeTypeGroup, n.DisplayName, id)
		}
	}
}

func (g *Graph) idsOfType(t models.NodeType) []string {
	var ids []string
	for id, n := range g.nodes {
		if n.Type == t {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// BuildFromNodes constructs the hierarchy from explicit node records. Parents
// must exist and sit exactly one level above their children; clients have no
// parent; every account must reach a client without a cycle.
func BuildFromNodes(nodes []*models.OwnershipNode) (*Graph, error) {
	var conflicts []string
	byID := make(map[string]*models.OwnershipNode, len(nodes))

	for _, n := range nodes {
		if n.ID == "" {
			conflicts = append(conflicts, "node with empty id")
			continue
		}
		if n.Type.Rank() < 0 || n.Type == models.NodeTypeRoot {
			conflicts = append(conflicts, fmt.Sprintf("node %s: invalid type %q", n.ID, n.Type))
			continue
		}
		if prev, ok := byID[n.ID]; ok && *prev != *n {
			conflicts = append(conflicts, fmt.Sprintf("node %s: defined twice with different attributes", n.ID))
			continue
		}
		byID[n.ID] = n
	}

	for _, n := range nodes {
		if byID[n.ID] != n {
			continue
		}
		if n.Type == models.NodeTypeClient {
			if n.ParentID != "" {
				conflicts = append(conflicts, fmt.Sprintf("client %s: must not have a parent", n.ID))
			}
			continue
		}
		parent, ok := byID[n.ParentID]
		if !ok {
			conflicts = append(conflicts, fmt.Sprintf("%s %s: parent %q not found", n.Type, n.ID, n.ParentID))
			continue
		}
		if parent.Type.Rank() != n.Type.Rank()+1 {
			conflicts = append(conflicts, fmt.Sprintf("%s %s: parent %s is a %s", n.Type, n.ID, parent.ID, parent.Type))
		}
	}

	if len(conflicts) == 0 {
		conflicts = findCycles(byID)
	}
	if len(conflicts) > 0 {
		return nil, &models.MalformedHierarchyError{Reason: "invalid ownership nodes", Conflicts: conflicts}
	}

	// Insert parents before children so child lists keep input order per level.
	ordered := make([]*models.OwnershipNode, 0, len(byID))
	for _, n := range nodes {
		if byID[n.ID] == n {
			ordered = append(ordered, n)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Type.Rank() > ordered[j].Type.Rank() })

	g := newGraph()
	for _, n := range ordered {
		cp := *n
		if cp.Key == "" {
			cp.Key = cp.ID
		}
		g.add(&cp)
	}
	return g, nil
}

// findCycles walks every node to its client and reports loops.
func findCycles(byID map[string]*models.OwnershipNode) []string {
	var conflicts []string
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		seen := map[string]bool{}
		cur := byID[id]
		for cur != nil && cur.Type != models.NodeTypeClient {
			if seen[cur.ID] {
				conflicts = append(conflicts, fmt.Sprintf("cycle through %s", id))
				break
			}
			seen[cur.ID] = true
			cur = byID[cur.ParentID]
		}
	}
	return conflicts
}

// Resolve maps a level and key to a node. The root level ignores key.
func (g *Graph) Resolve(level models.NodeType, key string) (*models.OwnershipNode, error) {
	if level == models.NodeTypeRoot {
		return g.nodes[models.AllClientsID], nil
	}
	key = strings.TrimSpace(key)
	ids := g.byKey[level][key]
	switch len(ids) {
	case 0:
		return nil, &models.NotFoundError{Kind: string(level), Key: key}
	case 1:
		return g.nodes[ids[0]], nil
	default:
		return nil, fmt.Errorf("%w: %s %q matches %d nodes", models.ErrAmbiguousKey, level, key, len(ids))
	}
}

func (g *Graph) Node(id string) (*models.OwnershipNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) Children(id string) []*models.OwnershipNode {
	ids := g.children[id]
	out := make([]*models.OwnershipNode, 0, len(ids))
	for _, c := range ids {
		out = append(out, g.nodes[c])
	}
	return out
}

// Ancestors returns the parent chain of id, nearest first, ending at the client.
func (g *Graph) Ancestors(id string) []*models.OwnershipNode {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []*models.OwnershipNode
	for n.ParentID != "" {
		p, ok := g.nodes[n.ParentID]
		if !ok {
			break
		}
		out = append(out, p)
		n = p
	}
	return out
}

func (g *Graph) Path(id string) []*models.OwnershipNode {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	anc := g.Ancestors(id)
	path := make([]*models.OwnershipNode, 0, len(anc)+1)
	for i := len(anc) - 1; i >= 0; i-- {
		path = append(path, anc[i])
	}
	return append(path, n)
}

func (g *Graph) DescendantAccounts(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	if n.Type == models.NodeTypeAccount {
		return []string{n.Key}
	}
	var out []string
	for _, c := range g.children[id] {
		out = append(out, g.DescendantAccounts(c)...)
	}
	return out
}

// Tree renders the subtree at rootKey. An empty key renders every client under
// the "All Clients" root. A key may be a node id or a key at any level,
// tried from client down to account.
func (g *Graph) Tree(rootKey string) (*models.OwnershipTree, error) {
	rootKey = strings.TrimSpace(rootKey)
	if rootKey == "" {
		return g.render(models.AllClientsID), nil
	}
	if _, ok := g.nodes[rootKey]; ok {
		return g.render(rootKey), nil
	}
	for _, level := range []models.NodeType{models.NodeTypeClient, models.NodeTypeGroup, models.NodeTypePortfolio, models.NodeTypeAccount} {
		n, err := g.Resolve(level, rootKey)
		if err == nil {
			return g.render(n.ID), nil
		}
		if !models.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, &models.NotFoundError{Kind: "node", Key: rootKey}
}

func (g *Graph) render(id string) *models.OwnershipTree {
	n := g.nodes[id]
	t := &models.OwnershipTree{
		ID:          n.ID,
		Type:        n.Type,
		Key:         n.Key,
		DisplayName: n.DisplayName,
		EntityID:    g.entities[id],
	}
	for _, c := range g.children[id] {
		t.Children = append(t.Children, g.render(c))
	}
	return t
}

// Size returns the number of nodes excluding the synthetic root.
func (g *Graph) Size() int {
	return len(g.nodes) - 1
}
