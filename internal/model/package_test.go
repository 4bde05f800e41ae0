package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RecordID
	}{
		{"数値ID", `{"id": 3}`, "3"},
		{"文字列ID", `{"id": "a1b2"}`, "a1b2"},
		{"null", `{"id": null}`, ""},
		{"欠落", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				ID RecordID `json:"id"`
			}
			if err := json.Unmarshal([]byte(tt.raw), &v); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if v.ID != tt.want {
				t.Errorf("ID = %q, want %q", v.ID, tt.want)
			}
		})
	}
}

func TestRecordID_UnmarshalJSON_RejectsObject(t *testing.T) {
	var v struct {
		ID RecordID `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"id": {"x": 1}}`), &v); err == nil {
		t.Fatal("expected error for object id")
	}
}

func TestNewCartEntry_CopiesPackageFields(t *testing.T) {
	pkg := Package{
		ID:       "2",
		Name:     "Power",
		Speed:    "50",
		Data:     "50GB",
		Price:    150000,
		Features: []string{"Unlimited social media"},
		Popular:  true,
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entry := NewCartEntry("u-1", pkg, now)

	if entry.PackageID != "2" || entry.UserID != "u-1" {
		t.Errorf("ids = (%q, %q), want (2, u-1)", entry.PackageID, entry.UserID)
	}
	if entry.Name != "Power" || entry.Speed != "50" || entry.Data != "50GB" || entry.Price != 150000 || !entry.Popular {
		t.Errorf("package fields not copied: %+v", entry)
	}
	if !entry.AddedAt.Equal(now) {
		t.Errorf("AddedAt = %v, want %v", entry.AddedAt, now)
	}
	if entry.ID != "" {
		t.Errorf("ID should be assigned by the store, got %q", entry.ID)
	}

	// 元のスライスを書き換えてもコピーに影響しないこと
	pkg.Features[0] = "changed"
	if entry.Features[0] != "Unlimited social media" {
		t.Errorf("Features shares backing array with package")
	}
}

func TestPartialCommitError_UnwrapsCause(t *testing.T) {
	cause := NewCheckoutFailedError(nil)
	err := &PartialCommitError{
		Committed:   []Transaction{{ID: "t1"}},
		FailedIndex: 1,
		Total:       3,
		Err:         cause,
	}
	if !HasCode(err, ErrCodeCheckoutFailed) {
		t.Error("HasCode should see the wrapped APIError")
	}
}
