package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/hitoshi/datanet/internal/confirm"
	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
)

// checkoutOne は1件カートに入れて承認付きでチェックアウトする。
func checkoutOne(t *testing.T, c *apiClient, packageID int) {
	t.Helper()
	c.do(http.MethodPost, "/api/cart", map[string]any{"packageId": packageID}, nil)
	var op opBody
	c.do(http.MethodPost, "/api/checkout", nil, &op)
	if op.Confirmation == nil {
		t.Fatalf("checkout should ask for confirmation, got %+v", op)
	}
	if resp := c.resolve(op.Confirmation.ID, true, &op); resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve = %d", resp.StatusCode)
	}
}

func TestTransactions_ListNewestFirstAndDelete(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)
	c.login()

	checkoutOne(t, c, 1)
	checkoutOne(t, c, 4)

	var txs []model.Transaction
	resp := c.do(http.MethodGet, "/api/transactions?refresh=1", nil, &txs)
	if resp.StatusCode != http.StatusOK || len(txs) != 2 {
		t.Fatalf("list = %d %+v", resp.StatusCode, txs)
	}
	if txs[0].PackageName != "Unlimited" || txs[1].PackageName != "Lite" {
		t.Errorf("order = %s,%s, want Unlimited,Lite", txs[0].PackageName, txs[1].PackageName)
	}
	if txs[0].PackageData != "100" || txs[1].PackageData != "10 Mbps" {
		t.Errorf("packageData = %q,%q", txs[0].PackageData, txs[1].PackageData)
	}

	var op opBody
	resp = c.do(http.MethodDelete, "/api/transactions/"+txs[1].ID.String(), nil, &op)
	if resp.StatusCode != http.StatusAccepted || op.Confirmation.Kind != confirm.KindDeleteTransaction {
		t.Fatalf("delete = %d %+v", resp.StatusCode, op)
	}
	c.resolve(op.Confirmation.ID, true, &op)
	if string(op.Result) != `{"deleted":true}` {
		t.Errorf("result = %s", op.Result)
	}

	c.do(http.MethodGet, "/api/transactions", nil, &txs)
	if len(txs) != 1 || txs[0].PackageName != "Unlimited" {
		t.Errorf("after delete = %+v", txs)
	}
	stored, _ := env.records.List(context.Background(), repository.CollectionTransactions, nil)
	if len(stored) != 1 {
		t.Errorf("stored = %d, want 1", len(stored))
	}
}

func TestTransactions_OtherUsersAreHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.records.Create(ctx, repository.CollectionTransactions, repository.Record{
		"userId": "someone-else", "packageName": "Power", "price": 199000,
		"createdAt": "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := env.newClient(t)
	c.login()

	var txs []model.Transaction
	c.do(http.MethodGet, "/api/transactions", nil, &txs)
	if len(txs) != 0 {
		t.Errorf("transactions = %+v, want none", txs)
	}
}

func TestTransactions_DeleteOtherUsersOrderReturns404(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.records.Create(ctx, repository.CollectionTransactions, repository.Record{
		"id": "foreign-tx", "userId": "someone-else", "packageName": "Power", "price": 199000,
		"createdAt": "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := env.newClient(t)
	c.login()

	var op opBody
	c.do(http.MethodDelete, "/api/transactions/foreign-tx", nil, &op)
	if op.Confirmation == nil {
		t.Fatalf("delete should ask for confirmation, got %+v", op)
	}
	var body errorBody
	resp := c.resolve(op.Confirmation.ID, true, &body)
	if resp.StatusCode != http.StatusNotFound || body.Code != model.ErrCodeTransactionNotFound {
		t.Errorf("resolve = %d %+v, want 404 TRANSACTION_NOT_FOUND", resp.StatusCode, body)
	}

	stored, _ := env.records.List(ctx, repository.CollectionTransactions, nil)
	if len(stored) != 1 {
		t.Errorf("stored = %d, want the other user's order kept", len(stored))
	}
}
