package checkout

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names rendered by the thank-you handler.
const (
	PageCancelled   = "cancelled"
	PageCompleted   = "completed"
	PageProcessed   = "processed"
	PageUnavailable = "unavailable"
)

var pageTitles = map[string]string{
	PageCancelled:   "Order telah dibatalkan",
	PageCompleted:   "Order selesai",
	PageProcessed:   "Order sudah diproses",
	PageUnavailable: "Pembayaran belum tersedia",
}

var pages = mustParsePages()

func mustParsePages() map[string]*template.Template {
	out := make(map[string]*template.Template, len(pageTitles))
	for name := range pageTitles {
		out[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return out
}

type pageData struct {
	Title   string
	Name    string
	OrderID string
}

// renderPage writes the named page; rendering happens into a buffer so a
// template failure still yields a clean 500.
func renderPage(w http.ResponseWriter, status int, name string, data pageData) {
	tpl, ok := pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	data.Title = pageTitles[name]
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
