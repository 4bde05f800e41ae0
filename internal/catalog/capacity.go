package catalog

import (
	"regexp"
	"strings"
)

// DefaultCapacityUnit は速度表記の既定単位。
const DefaultCapacityUnit = "Mbps"

// Normalizer はパッケージの速度表記を「数値 単位」の形に揃える。
// 単位の大文字小文字は問わず、ゼロ値は使用できない。
type Normalizer struct {
	unit    string
	pattern *regexp.Regexp
}

// NewNormalizer は指定単位のNormalizerを生成する。unitが空の場合は既定単位を使う。
func NewNormalizer(unit string) *Normalizer {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = DefaultCapacityUnit
	}
	return &Normalizer{
		unit:    unit,
		pattern: regexp.MustCompile("(?i)" + regexp.QuoteMeta(unit)),
	}
}

// Unit は正規化に使う単位を返す。
func (n *Normalizer) Unit() string {
	return n.unit
}

// Normalize は速度表記を正規化する。
//
//	"10"        -> "10 Mbps"
//	"10mbps"    -> "10 Mbps"
//	"10   MBPS" -> "10 Mbps"
//	""          -> ""
//
// 単位が含まれる場合は最初の出現だけを置換し、連続する空白を1つにまとめる。
// 含まれない場合は末尾に単位を付ける。
func (n *Normalizer) Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	loc := n.pattern.FindStringIndex(s)
	if loc == nil {
		return s + " " + n.unit
	}

	s = s[:loc[0]] + " " + n.unit + s[loc[1]:]
	return strings.Join(strings.Fields(s), " ")
}

// Display は表示用の容量表記を返す。速度が空ならdataをそのまま使う。
// 取引レコードのpackageDataにも同じ値を保存する。
func (n *Normalizer) Display(speed, data string) string {
	if s := n.Normalize(speed); s != "" {
		return s
	}
	return strings.TrimSpace(data)
}

var defaultNormalizer = NewNormalizer(DefaultCapacityUnit)

// NormalizeCapacity はunitを単位として速度表記を正規化する。
func NormalizeCapacity(raw, unit string) string {
	if unit == "" || unit == DefaultCapacityUnit {
		return defaultNormalizer.Normalize(raw)
	}
	return NewNormalizer(unit).Normalize(raw)
}

// FormatSpeed は既定単位（Mbps）で速度表記を正規化する。
func FormatSpeed(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// DisplayCapacity は既定単位で表示用の容量表記を返す。
func DisplayCapacity(speed, data string) string {
	return defaultNormalizer.Display(speed, data)
}
