/**
 * @description
 * This file contains the HTTP handler functions for the storefront-service.
 * Page handlers drive a checkout view per request; the JSON handlers expose the
 * backend data layer directly.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tempo/storefront-service/internal/app"
	"github.com/tempo/storefront-service/internal/domain"
	"github.com/tempo/storefront-service/internal/view"
)

const checkoutFailedRedirect = "/?checkout=failed#pricing"

// Backend is the data layer the handlers and views talk to.
type Backend interface {
	view.CatalogFetcher
	view.SubscriptionSource
	view.UserStore
	view.CheckoutInitiator
	GetStatus(ctx context.Context, clerkUserID string) (*domain.SubscriptionStatus, error)
}

// HandlerConfig carries the settings the handlers need.
type HandlerConfig struct {
	ClerkPublishableKey string
	RenderTimeout       time.Duration
	AllowedOrigins      []string
	LiveAllowedOrigins  []string
}

// Handler holds the dependencies that handlers will interact with.
type Handler struct {
	backend  Backend
	verifier TokenVerifier
	pages    *pageRenderer
	cfg      HandlerConfig
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(backend Backend, verifier TokenVerifier, cfg HandlerConfig, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 3 * time.Second
	}
	pages, err := newPageRenderer()
	if err != nil {
		return nil, err
	}
	return &Handler{
		backend:  backend,
		verifier: verifier,
		pages:    pages,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (h *Handler) newView(identity view.IdentitySource, navigator view.Navigator, renderer view.Renderer) *view.View {
	return view.New(view.Dependencies{
		Identity:      identity,
		Catalog:       h.backend,
		Subscriptions: h.backend,
		Users:         h.backend,
		Checkout:      h.backend,
		Navigator:     navigator,
		Renderer:      renderer,
		Logger:        h.logger,
	})
}

func identityFromRequest(r *http.Request) domain.IdentityState {
	if user, ok := UserFromContext(r.Context()); ok {
		return domain.SignedIn(user)
	}
	return domain.SignedOut()
}

// handleHome renders the landing page from a settled view snapshot. It waits
// for the catalog and, for signed-in users, the subscription status, but never
// longer than the configured render timeout.
func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	settled := newSettleWatcher()
	v := h.newView(nil, nil, settled)
	if err := v.Mount(r.Context()); err != nil {
		h.logger.Error("failed to mount view", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer v.Unmount()
	v.SetIdentity(identityFromRequest(r))

	waitCtx, cancel := context.WithTimeout(r.Context(), h.cfg.RenderTimeout)
	defer cancel()
	select {
	case <-settled.done:
	case <-waitCtx.Done():
		h.logger.Warn("rendering unsettled page", "timeout", h.cfg.RenderTimeout)
	}

	snapshot := v.Snapshot()
	if r.URL.Query().Get("checkout") == "failed" {
		snapshot.Notice = view.CheckoutFailedNotice
	}
	h.pages.home(w, h.homePage(snapshot))
}

// handleCheckoutForm starts checkout for the posted price and redirects the
// browser to the hosted checkout page, or back to pricing on failure.
func (h *Handler) handleCheckoutForm(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	var target string
	v := h.newView(nil, view.NavigatorFunc(func(ctx context.Context, url string) error {
		target = url
		return nil
	}), nil)
	if err := v.Mount(r.Context()); err != nil {
		h.logger.Error("failed to mount view", "error", err)
		http.Redirect(w, r, checkoutFailedRedirect, http.StatusSeeOther)
		return
	}
	defer v.Unmount()
	v.SetIdentity(domain.SignedIn(user))

	if err := v.Checkout(r.Context(), r.PostFormValue("price_id")); err != nil {
		http.Redirect(w, r, checkoutFailedRedirect, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// profile completes the session identity with the stored user record. Session
// tokens usually carry only the subject, so the record is where the name lives.
func (h *Handler) profile(ctx context.Context, user domain.UserRef) domain.UserRef {
	stored, err := h.backend.StoreUser(ctx, user)
	if err != nil {
		h.logger.Warn("failed to store user", "clerk_user_id", user.ID, "error", err)
		return user
	}
	if user.Name == "" && stored.Name != nil {
		user.Name = *stored.Name
	}
	if user.Email == "" && stored.Email != nil {
		user.Email = *stored.Email
	}
	return user
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	user = h.profile(r.Context(), user)
	h.pages.dashboard(w, dashboardPage{Title: "Dashboard", User: &user})
}

// handleDashboardPaid only admits users with an active subscription; everybody
// else is sent to the pricing section.
func (h *Handler) handleDashboardPaid(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	status, err := h.backend.GetStatus(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to load subscription status", "clerk_user_id", user.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !status.IsActive {
		http.Redirect(w, r, "/#pricing", http.StatusSeeOther)
		return
	}
	user = h.profile(r.Context(), user)
	h.pages.dashboard(w, dashboardPage{Title: "Dashboard (Paid)", User: &user, Subscription: status})
}

// handleListProducts returns the catalog.
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	plans, err := h.backend.FetchCatalog(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch catalog", "error", err)
		http.Error(w, "Catalog unavailable", http.StatusBadGateway)
		return
	}
	if plans == nil {
		plans = []domain.PricePlan{}
	}
	respondWithJSON(w, http.StatusOK, plans)
}

// handleStoreUser upserts the authenticated user.
func (h *Handler) handleStoreUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	stored, err := h.backend.StoreUser(r.Context(), user)
	if err != nil {
		h.logger.Error("failed to store user", "clerk_user_id", user.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, stored)
}

// handleGetStatus handles the request to get a user's subscription status.
func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.backend.GetStatus(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to load subscription status", "clerk_user_id", user.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// handleCreateCheckout creates a checkout session and returns its URL.
func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.backend.CreateCheckoutSession(r.Context(), user, req)
	switch {
	case errors.Is(err, app.ErrInvalidPriceID), errors.Is(err, app.ErrUnknownPrice):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("failed to get checkout URL", "price_id", req.PriceID, "error", err)
		http.Error(w, "Checkout unavailable", http.StatusBadGateway)
		return
	case session == nil || strings.TrimSpace(session.URL) == "":
		h.logger.Error("failed to get checkout URL", "price_id", req.PriceID, "error", view.ErrEmptyCheckoutURL)
		http.Error(w, "Checkout unavailable", http.StatusBadGateway)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
