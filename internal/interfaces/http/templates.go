package http

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names
const (
	tmplLogin   = "login.html"
	tmplBills   = "bills.html"
	tmplModal   = "modal.html"
	tmplNewBill = "newbill.html"
)

func loadTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
