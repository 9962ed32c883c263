package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"sync"

	"github.com/tempo/storefront-service/internal/domain"
	"github.com/tempo/storefront-service/internal/view"
)

//go:embed templates/*.html
var templatesFS embed.FS

type feature struct {
	Icon        string
	Title       string
	Description string
}

var features = []feature{
	{Icon: "⚡️", Title: "React + Vite", Description: "Lightning-fast development with modern tooling and instant HMR"},
	{Icon: "🔐", Title: "Clerk Auth", Description: "Secure authentication and user management out of the box"},
	{Icon: "🚀", Title: "Convex BaaS", Description: "Real-time backend with automatic scaling and TypeScript support"},
	{Icon: "💳", Title: "Stripe", Description: "Seamless payment integration for your SaaS"},
}

type homePage struct {
	Snapshot            view.Snapshot
	Features            []feature
	ClerkPublishableKey string
}

type dashboardPage struct {
	Title        string
	User         *domain.UserRef
	Subscription *domain.SubscriptionStatus
}

func (h *Handler) homePage(snapshot view.Snapshot) homePage {
	return homePage{
		Snapshot:            snapshot,
		Features:            features,
		ClerkPublishableKey: h.cfg.ClerkPublishableKey,
	}
}

type pageRenderer struct {
	templates *template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	tmpl, err := template.New("pages").Funcs(template.FuncMap{
		"displayName": displayName,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &pageRenderer{templates: tmpl}, nil
}

func (p *pageRenderer) home(w http.ResponseWriter, data homePage) {
	p.render(w, "home.html", data)
}

func (p *pageRenderer) dashboard(w http.ResponseWriter, data dashboardPage) {
	p.render(w, "dashboard.html", data)
}

// render buffers the page so a template error never leaves a half-written response.
func (p *pageRenderer) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func displayName(user *domain.UserRef) string {
	switch {
	case user == nil:
		return ""
	case user.Name != "":
		return user.Name
	case user.Email != "":
		return user.Email
	default:
		return user.ID
	}
}

// settleWatcher closes done once a rendered snapshot is complete enough to
// serve: identity loaded, catalog settled, and for signed-in users a known
// subscription status and a finished user upsert.
type settleWatcher struct {
	once sync.Once
	done chan struct{}
}

func newSettleWatcher() *settleWatcher {
	return &settleWatcher{done: make(chan struct{})}
}

func (s *settleWatcher) Render(snapshot view.Snapshot) {
	if snapshot.Loading() || !snapshot.CatalogReady {
		return
	}
	if snapshot.SignedIn() && (snapshot.Subscription == nil || !snapshot.UserSynced) {
		return
	}
	s.once.Do(func() { close(s.done) })
}
