package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

// navItem is one entry of the navigation shell
type navItem struct {
	Title string
	Path  string
	Icon  string
}

var navigation = []navItem{
	{Title: "Dashboard", Path: "/", Icon: "▦"},
	{Title: "Employees", Path: "/employees", Icon: "👥"},
	{Title: "Add Camera", Path: "/add-camera", Icon: "＋"},
	{Title: "Camera", Path: "/camera-grid", Icon: "📷"},
}

// layoutData is shared by every page
type layoutData struct {
	Title    string
	Active   string
	Nav      []navItem
	VisitID  string
	Operator string
	Page     any
}

type views struct {
	pages map[string]*template.Template
}

func loadViews(checkInGesture string) (*views, error) {
	funcs := template.FuncMap{
		"gestureLabel": func(g string) string { return services.GestureLabel(g, checkInGesture) },
		"ago":          func(t time.Time) string { return humanize.Time(t) },
		"stamp":        func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
		"cameraCount": func(n int) string {
			if n == 1 {
				return "1 Camera Connected"
			}
			return fmt.Sprintf("%d Cameras Connected", n)
		},
	}

	v := &views{pages: make(map[string]*template.Template)}
	for _, name := range []string{"dashboard", "camera_grid", "employees", "add_camera"} {
		t, err := template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

func (v *views) render(w http.ResponseWriter, status int, name string, data layoutData) {
	t, ok := v.pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	data.Nav = navigation

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		log.Printf("❌ Error rendering %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
