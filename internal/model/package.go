// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RecordID はレコードストアが払い出す識別子。
// json-server系のストアは数値IDと文字列IDのどちらも返すため、両方を文字列として受け付ける。
type RecordID string

// UnmarshalJSON は数値・文字列どちらのJSON表現からもRecordIDを復元する。
func (id *RecordID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid record id %s: %w", string(b), err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("invalid record id %s: %w", string(b), err)
	}
	*id = RecordID(n.String())
	return nil
}

// String はIDの文字列表現を返す。
func (id RecordID) String() string {
	return string(id)
}

// Package はカタログ上のデータパッケージを表す。セッション中は不変として扱う。
type Package struct {
	ID       RecordID `json:"id"`
	Name     string   `json:"name"`
	Speed    string   `json:"speed,omitempty"` // 単位付き/単位なしどちらもあり得る
	Data     string   `json:"data,omitempty"`  // Speedが空のときの代替表記
	Price    int64    `json:"price"`           // 最小通貨単位（ルピア）
	Features []string `json:"features"`
	Popular  bool     `json:"popular"`
}

// CartEntry はユーザーごとのカート行。Packageの非正規化コピーを持つ。
// 同一パッケージの重複行は許容する。
type CartEntry struct {
	ID        RecordID  `json:"id,omitempty"`
	PackageID RecordID  `json:"packageId"`
	UserID    RecordID  `json:"userId"`
	Name      string    `json:"name"`
	Speed     string    `json:"speed,omitempty"`
	Data      string    `json:"data,omitempty"`
	Price     int64     `json:"price"`
	Features  []string  `json:"features"`
	Popular   bool      `json:"popular"`
	AddedAt   time.Time `json:"addedAt"`
}

// 取引レコードの固定値。
const (
	// TransactionDuration は期間ラベル。実際の有効期限ではない。
	TransactionDuration = "/month /bulan"
	// TransactionStatusCompleted は現状唯一生成されるステータス。
	TransactionStatusCompleted = "completed"
)

// Transaction はチェックアウトで確定した注文行。作成後は不変で、削除のみ可能。
type Transaction struct {
	ID          RecordID  `json:"id,omitempty"`
	UserID      RecordID  `json:"userId"`
	PackageID   RecordID  `json:"packageId"`
	PackageName string    `json:"packageName"`
	PackageData string    `json:"packageData"` // 単位正規化済みの容量/速度表記
	Price       int64     `json:"price"`
	Duration    string    `json:"duration"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewCartEntry はパッケージをコピーしてユーザーIDと追加日時を付与したカート行を生成する。
func NewCartEntry(userID RecordID, pkg Package, addedAt time.Time) CartEntry {
	features := make([]string, len(pkg.Features))
	copy(features, pkg.Features)
	return CartEntry{
		PackageID: pkg.ID,
		UserID:    userID,
		Name:      pkg.Name,
		Speed:     pkg.Speed,
		Data:      pkg.Data,
		Price:     pkg.Price,
		Features:  features,
		Popular:   pkg.Popular,
		AddedAt:   addedAt,
	}
}
