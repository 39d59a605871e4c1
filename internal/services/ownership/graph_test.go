package ownership

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/rollup/internal/models"
)

func sampleRows() []*models.OwnershipRow {
	return []*models.OwnershipRow{
		{HoldingAccount: "Smith IRA", HoldingAccountNumber: "A1", TopLevelClient: "Smith", EntityID: "E1", Portfolio: "Growth", Groups: "Family"},
		{HoldingAccount: "Smith Brokerage", HoldingAccountNumber: "A2", TopLevelClient: "Smith", EntityID: "E1", Portfolio: "Growth", Groups: "Family"},
		{HoldingAccount: "Trust", HoldingAccountNumber: "A3", TopLevelClient: "Smith", EntityID: "E2", Portfolio: "Legacy"},
		{HoldingAccount: "Jones Main", HoldingAccountNumber: "B1", TopLevelClient: "Jones", EntityID: "E3", Portfolio: "Core", Groups: "Family"},
	}
}

func TestBuild_AttachesInFixedOrder(t *testing.T) {
	g, err := Build(sampleRows())
	require.NoError(t, err)

	path := g.Path("account:A1")
	require.Len(t, path, 4)
	assert.Equal(t, models.NodeTypeClient, path[0].Type)
	assert.Equal(t, models.NodeTypeGroup, path[1].Type)
	assert.Equal(t, models.NodeTypePortfolio, path[2].Type)
	assert.Equal(t, models.NodeTypeAccount, path[3].Type)
	assert.Equal(t, "Smith IRA", path[3].DisplayName)

	anc := g.Ancestors("account:A3")
	require.Len(t, anc, 3)
	assert.Equal(t, "portfolio:Legacy", anc[0].ID)
	assert.Equal(t, models.DefaultGroupName, anc[1].DisplayName)
	assert.Equal(t, "client:Smith", anc[2].ID)
}

func TestBuild_DescendantAccounts(t *testing.T) {
	g, err := Build(sampleRows())
	require.NoError(t, err)

	assert.Equal(t, []string{"A1", "A2", "A3"}, g.DescendantAccounts("client:Smith"))
	assert.Equal(t, []string{"A1", "A2"}, g.DescendantAccounts("portfolio:Growth"))
	assert.Equal(t, []string{"B1"}, g.DescendantAccounts("account:B1"))
	assert.ElementsMatch(t, []string{"A1", "A2", "A3", "B1"}, g.DescendantAccounts(models.AllClientsID))
	assert.Nil(t, g.DescendantAccounts("client:Nobody"))
}

func TestBuild_DuplicateRowsAccepted(t *testing.T) {
	rows := append(sampleRows(), sampleRows()[0])
	g, err := Build(rows)
	require.NoError(t, err)
	assert.Len(t, g.DescendantAccounts("portfolio:Growth"), 2)
}

func TestBuild_AccountMovedBetweenPortfolios(t *testing.T) {
	rows := append(sampleRows(), &models.OwnershipRow{
		HoldingAccount: "Smith IRA", HoldingAccountNumber: "A1", TopLevelClient: "Smith", Portfolio: "Legacy",
	})

	g, err := Build(rows)
	assert.Nil(t, g)

	var mh *models.MalformedHierarchyError
	require.True(t, errors.As(err, &mh), "expected MalformedHierarchyError, got %v", err)
	require.Len(t, mh.Conflicts, 1)
	assert.Contains(t, mh.Conflicts[0], "account A1")
}

func TestBuild_PortfolioUnderTwoClients(t *testing.T) {
	rows := append(sampleRows(), &models.OwnershipRow{
		HoldingAccountNumber: "C1", TopLevelClient: "Jones", Portfolio: "Growth", Groups: "Family",
	})

	_, err := Build(rows)
	var mh *models.MalformedHierarchyError
	require.True(t, errors.As(err, &mh))
	assert.Contains(t, mh.Error(), "portfolio Growth")
}

func TestBuild_PortfolioUnderTwoGroups(t *testing.T) {
	rows := append(sampleRows(), &models.OwnershipRow{
		HoldingAccountNumber: "A9", TopLevelClient: "Smith", Portfolio: "Growth", Groups: "Other",
	})

	_, err := Build(rows)
	var mh *models.MalformedHierarchyError
	require.True(t, errors.As(err, &mh))
	assert.Contains(t, mh.Conflicts[0], "group")
}

func TestBuild_MissingFields(t *testing.T) {
	_, err := Build([]*models.OwnershipRow{{HoldingAccountNumber: "A1", Portfolio: "P"}})
	var mh *models.MalformedHierarchyError
	require.True(t, errors.As(err, &mh))
}

func TestResolve(t *testing.T) {
	g, err := Build(sampleRows())
	require.NoError(t, err)

	tests := []struct {
		name   string
		level  models.NodeType
		key    string
		wantID string
	}{
		{"client", models.NodeTypeClient, "Smith", "client:Smith"},
		{"qualified group", models.NodeTypeGroup, "Jones/Family", "group:Jones/Family"},
		{"unique bare group", models.NodeTypeGroup, models.DefaultGroupName, "group:Smith/Ungrouped"},
		{"portfolio", models.NodeTypePortfolio, "Core", "portfolio:Core"},
		{"account", models.NodeTypeAccount, "A2", "account:A2"},
		{"root ignores key", models.NodeTypeRoot, "anything", models.AllClientsID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := g.Resolve(tt.level, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, n.ID)
		})
	}

	_, err = g.Resolve(models.NodeTypePortfolio, "Missing")
	assert.True(t, models.IsNotFound(err))

	_, err = g.Resolve(models.NodeTypeGroup, "Family")
	assert.True(t, errors.Is(err, models.ErrAmbiguousKey), "Family exists under two clients")
}

func TestTree(t *testing.T) {
	g, err := Build(sampleRows())
	require.NoError(t, err)

	all, err := g.Tree("")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeRoot, all.Type)
	require.Len(t, all.Children, 2)
	assert.Equal(t, "Smith", all.Children[0].DisplayName)

	sub, err := g.Tree("Growth")
	require.NoError(t, err)
	assert.Equal(t, "portfolio:Growth", sub.ID)
	require.Len(t, sub.Children, 2)
	assert.Equal(t, "E1", sub.Children[0].EntityID)

	_, err = g.Tree("nope")
	assert.True(t, models.IsNotFound(err))
}

func TestBuildFromNodes(t *testing.T) {
	nodes := []*models.OwnershipNode{
		{ID: "acc1", Type: models.NodeTypeAccount, ParentID: "pf1", DisplayName: "Account 1"},
		{ID: "pf1", Type: models.NodeTypePortfolio, ParentID: "g1", DisplayName: "Portfolio 1"},
		{ID: "g1", Type: models.NodeTypeGroup, ParentID: "c1", DisplayName: "Group 1"},
		{ID: "c1", Type: models.NodeTypeClient, DisplayName: "Client 1"},
	}
	g, err := BuildFromNodes(nodes)
	require.NoError(t, err)

	assert.Len(t, g.Path("acc1"), 4)
	assert.Equal(t, []string{"acc1"}, g.DescendantAccounts("c1"))
}

func TestBuildFromNodes_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		nodes []*models.OwnershipNode
	}{
		{"missing parent", []*models.OwnershipNode{
			{ID: "acc1", Type: models.NodeTypeAccount, ParentID: "pf1"},
		}},
		{"skipped level", []*models.OwnershipNode{
			{ID: "c1", Type: models.NodeTypeClient},
			{ID: "acc1", Type: models.NodeTypeAccount, ParentID: "c1"},
		}},
		{"client with parent", []*models.OwnershipNode{
			{ID: "c0", Type: models.NodeTypeClient},
			{ID: "c1", Type: models.NodeTypeClient, ParentID: "c0"},
		}},
		{"cycle", []*models.OwnershipNode{
			{ID: "a", Type: models.NodeTypePortfolio, ParentID: "b"},
			{ID: "b", Type: models.NodeTypePortfolio, ParentID: "a"},
		}},
		{"conflicting duplicate", []*models.OwnershipNode{
			{ID: "c1", Type: models.NodeTypeClient, DisplayName: "One"},
			{ID: "c1", Type: models.NodeTypeClient, DisplayName: "Two"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildFromNodes(tt.nodes)
			var mh *models.MalformedHierarchyError
			if !errors.As(err, &mh) {
				t.Fatalf("expected MalformedHierarchyError, got %v", err)
			}
		})
	}
}
