package opensearch

// statusDisplay maps the tracker's one-character release status to the text
// shown to users.
var statusDisplay = map[string]string{
	"√": "✅ (проверено)",
	"#": "⚠️ (сомнительно)",
	"*": "*️⃣ (не проверено)",
	"T": "🕠 (временная)",
	"?": "❓ (недооформлено)",
	"∑": "✝️ (поглощено)",
	"!": "❗️(не оформлено)",
	"D": "🔘 (повтор)",
	"x": "❌️ (закрыто)",
	"∏": "♿️ (проверяется)",
}

// DisplayStatus returns the display string for a status symbol, or "" for
// anything not in the table.
func DisplayStatus(symbol string) string {
	return statusDisplay[symbol]
}
