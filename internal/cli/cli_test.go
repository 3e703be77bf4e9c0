package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/service"
	"specsbiz/backend/internal/store/sqlite"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seedShop records one product and one sale for the "local" namespace.
func seedShop(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	svc := service.New(db, service.Options{})
	defer svc.Close()
	owner := service.WithActor(ctx, domain.Actor{Username: "cli", Role: domain.RoleOwner, OwnerID: "local"})

	product, err := svc.CreateProduct(owner, domain.ProductCreateRequest{
		Name:          "Miniket Rice",
		Unit:          "kg",
		PurchasePrice: decimal.NewFromInt(62),
		SellingPrice:  decimal.NewFromInt(70),
		Stock:         decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	_, err = svc.CreateSale(owner, domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: decimal.NewFromInt(2)}},
	})
	require.NoError(t, err)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"migrate"}, {"ledger", "list"}, {"ledger", "export"}, {"summary"}, {"user", "add"}} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := runCLI(t, "--db", filepath.Join(t.TempDir(), "shop.db"), "--format", "xml", "migrate")
	require.Error(t, err)
}

func TestMigrateAndAddUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")

	out, err := runCLI(t, "--db", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "local store is up to date")

	out, err = runCLI(t, "--db", path, "--owner", "shop-1", "--format", "json", "user", "add", "--username", "Rahim", "--password", "rahim123")
	require.NoError(t, err)
	var user domain.StaffUser
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "rahim", user.Username)
	assert.Equal(t, domain.RoleOwner, user.Role)
	assert.Equal(t, "shop-1", user.OwnerID)

	_, err = runCLI(t, "--db", path, "user", "add", "--username", "rahim", "--password", "rahim123")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLedgerListAndSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	seedShop(t, path)

	out, err := runCLI(t, "--db", path, "--format", "json", "ledger", "list")
	require.NoError(t, err)
	var view domain.LedgerResponse
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 2, view.Summary.Entries)

	out, err = runCLI(t, "--db", path, "--format", "json", "ledger", "list", "--type", "sale")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Entries, 1)
	assert.True(t, view.Entries[0].Amount.Equal(decimal.NewFromInt(140)))

	out, err = runCLI(t, "--db", path, "--format", "yaml", "summary")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &summary))
	overview, ok := summary["overview"].(map[string]any)
	require.True(t, ok, "overview section missing: %s", out)
	assert.Equal(t, "140", overview["total_cash_in"])

	out, err = runCLI(t, "--db", path, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Cash in:      140.00")
}

func TestLedgerExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.db")
	seedShop(t, path)

	csvPath := filepath.Join(dir, "ledger.csv")
	out, err := runCLI(t, "--db", path, "ledger", "export", "--as", "csv", "--out", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 entries")

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Date,Time,Type"))

	htmlPath := filepath.Join(dir, "ledger.html")
	_, err = runCLI(t, "--db", path, "ledger", "export", "--as", "print", "--columns", "date,item,total", "--out", htmlPath)
	require.NoError(t, err)
	page, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Miniket Rice")
	assert.NotContains(t, string(page), "<th>Unpaid</th>")

	_, err = runCLI(t, "--db", path, "ledger", "export", "--as", "pdf")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
