package view

import (
	"github.com/tempo/storefront-service/internal/domain"
)

// Mode is the presentation mode of the checkout view. Exactly one applies at a time.
type Mode string

const (
	ModeLoading    Mode = "loading"
	ModeSignedOut  Mode = "signed_out"
	ModeSignedIn   Mode = "signed_in"
	ModeSubscribed Mode = "subscribed"
)

// AuthAction describes how the page should trigger a sign-in or sign-out.
type AuthAction struct {
	Mode        string `json:"mode,omitempty"`
	RedirectURL string `json:"redirect_url"`
}

// DashboardLink is a page-shell navigation target offered to signed-in users.
type DashboardLink struct {
	Label   string `json:"label"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Snapshot is one complete render of the view.
type Snapshot struct {
	Revision     uint64                     `json:"revision"`
	Mode         Mode                       `json:"mode"`
	User         *domain.UserRef            `json:"user,omitempty"`
	UserSynced   bool                       `json:"user_synced,omitempty"`
	Subscription *domain.SubscriptionStatus `json:"subscription,omitempty"`
	CatalogReady bool                       `json:"catalog_ready"`
	Plans        []domain.PlanCard          `json:"plans"`
	SignIn       *AuthAction                `json:"sign_in,omitempty"`
	SignOut      *AuthAction                `json:"sign_out,omitempty"`
	Dashboards   []DashboardLink            `json:"dashboards,omitempty"`
	Notice       string                     `json:"notice,omitempty"`
}

// Loading reports whether identity-dependent regions render as placeholders.
func (s Snapshot) Loading() bool { return s.Mode == ModeLoading }

// SignedIn reports whether the snapshot belongs to an authenticated user.
func (s Snapshot) SignedIn() bool { return s.Mode == ModeSignedIn || s.Mode == ModeSubscribed }

// DeriveMode maps identity and subscription status onto a presentation mode.
// Nothing about the user is consulted until identity has loaded.
func DeriveMode(identity domain.IdentityState, status *domain.SubscriptionStatus) Mode {
	if !identity.IsLoaded {
		return ModeLoading
	}
	if _, ok := identity.Authenticated(); !ok {
		return ModeSignedOut
	}
	if status != nil && status.IsActive {
		return ModeSubscribed
	}
	return ModeSignedIn
}

func dashboardsFor(mode Mode) []DashboardLink {
	return []DashboardLink{
		{Label: "Go to Dashboard (Non paid)", Path: "/dashboard", Enabled: true},
		{Label: "Go to Dashboard (Paid)", Path: "/dashboard-paid", Enabled: mode == ModeSubscribed},
	}
}
