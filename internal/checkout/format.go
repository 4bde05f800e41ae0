package checkout

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var idPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah は金額を "Rp 1.234.567" の形式で返す。
func FormatRupiah(amount int64) string {
	return idPrinter.Sprintf("Rp %d", amount)
}
