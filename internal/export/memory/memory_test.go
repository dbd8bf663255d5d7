package memory

import (
	"context"
	"testing"

	"tesoro/internal/core"
	"tesoro/internal/export"
)

func TestAppendAndList(t *testing.T) {
	client := New()
	ctx := context.Background()

	rows := []export.Row{
		{Username: "Alice", Vault: "Main", Type: core.Deposit, Amount: core.Money{Cents: 10000},
			Category: "Salary", Description: "march pay", Date: core.NewDate(2026, 3, 1)},
		{Username: "Alice", Vault: "Main", Type: core.Withdraw, Amount: core.Money{Cents: -2500},
			Category: "Groceries", Description: "veggies", Date: core.NewDate(2026, 3, 4)},
		{Username: "Alice", Vault: "Main", Type: core.Deposit, Amount: core.Money{Cents: 500},
			Category: "Other", Description: "found coin", Date: core.NewDate(2026, 4, 1)},
	}

	for i, r := range rows {
		ref, err := client.Append(ctx, r)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if ref == "" {
			t.Errorf("Append() row %d returned empty ref", i)
		}
	}

	march, err := client.ListRows(ctx, 2026, 3)
	if err != nil {
		t.Fatalf("ListRows() error = %v", err)
	}
	if len(march) != 2 {
		t.Fatalf("ListRows(march) returned %d rows, want 2", len(march))
	}
	if march[1].Amount.Cents != -2500 {
		t.Errorf("withdrawal amount = %d, want -2500", march[1].Amount.Cents)
	}

	empty, err := client.ListRows(ctx, 2026, 5)
	if err != nil {
		t.Fatalf("ListRows() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListRows(may) returned %d rows, want 0", len(empty))
	}

	if client.Len() != 3 {
		t.Errorf("Len() = %d, want 3", client.Len())
	}
}
