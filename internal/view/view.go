/**
 * @description
 * The session-gated checkout view. It reconciles three independent asynchronous
 * inputs (identity, the one-shot catalog fetch, and the pushed subscription
 * status) into a single Snapshot, and performs the checkout redirect when asked.
 *
 * All state lives behind one mutex. Sources push into the view through
 * SetIdentity/SetSubscription; every accepted change bumps the revision and is
 * handed to the Renderer while the lock is held, so renders are totally ordered.
 */
package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tempo/storefront-service/internal/domain"
	"github.com/tempo/storefront-service/internal/metrics"
	"github.com/tempo/storefront-service/internal/pricing"
)

var (
	// ErrAlreadyMounted is returned when Mount is called on a view that was mounted before.
	ErrAlreadyMounted = errors.New("view cannot be mounted twice")
	// ErrNotAuthenticated is returned by Checkout when no signed-in user is known.
	ErrNotAuthenticated = errors.New("checkout requires a signed-in user")
	// ErrEmptyCheckoutURL is returned when the initiator succeeds without a redirect target.
	ErrEmptyCheckoutURL = errors.New("checkout session has no redirect url")
	// ErrCheckoutUnavailable is returned when no checkout initiator is configured.
	ErrCheckoutUnavailable = errors.New("checkout is not available")
)

// CheckoutFailedNotice is shown after a checkout initiation fails.
const CheckoutFailedNotice = "We couldn't start checkout. Please try again."

const defaultUserSyncTimeout = 10 * time.Second

// IdentitySource pushes identity updates until ctx is done.
type IdentitySource interface {
	WatchIdentity(ctx context.Context) <-chan domain.IdentityState
}

// CatalogFetcher loads the purchasable price plans.
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context) ([]domain.PricePlan, error)
}

// SubscriptionSource pushes the subscription status of one user until ctx is done.
// It is called with the view locked and must not call back into the view.
type SubscriptionSource interface {
	WatchSubscription(ctx context.Context, clerkUserID string) <-chan domain.SubscriptionStatus
}

// UserStore upserts the signed-in user. Calls must be idempotent.
type UserStore interface {
	StoreUser(ctx context.Context, user domain.UserRef) (*domain.User, error)
}

// CheckoutInitiator creates a hosted checkout session for a price.
type CheckoutInitiator interface {
	CreateCheckoutSession(ctx context.Context, user domain.UserRef, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
}

// Navigator performs a full-page navigation.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// Renderer receives every new snapshot. It is called with the view locked and
// must not call back into the view.
type Renderer interface {
	Render(Snapshot)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }

// Dependencies are the collaborators of a View. Only Catalog and Checkout are
// needed for a useful view; every other field may be nil. Without an Identity
// source the owner pushes identity through SetIdentity.
type Dependencies struct {
	Identity        IdentitySource
	Catalog         CatalogFetcher
	Subscriptions   SubscriptionSource
	Users           UserStore
	Checkout        CheckoutInitiator
	Navigator       Navigator
	Renderer        Renderer
	Logger          *slog.Logger
	UserSyncTimeout time.Duration
}

type lifecycle int

const (
	lifecycleNew lifecycle = iota
	lifecycleMounted
	lifecycleUnmounted
)

// View is the session-gated checkout view for a single page instance.
type View struct {
	deps   Dependencies
	logger *slog.Logger

	mu     sync.Mutex
	state  lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	identity     domain.IdentityState
	syncedUserID string
	storedUser   *domain.User
	userSynced   bool

	plans        []domain.PricePlan
	catalogReady bool
	catalogDone  chan struct{}

	status      *domain.SubscriptionStatus
	watchUserID string
	stopWatch   context.CancelFunc

	notice   string
	revision uint64
}

// New creates an unmounted view. Identity starts out unloaded.
func New(deps Dependencies) *View {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.UserSyncTimeout <= 0 {
		deps.UserSyncTimeout = defaultUserSyncTimeout
	}
	return &View{
		deps:        deps,
		logger:      logger,
		catalogDone: make(chan struct{}),
	}
}

// Mount starts the catalog fetch and begins following the identity source.
// The catalog is fetched exactly once per view, whatever the identity.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.state != lifecycleNew {
		v.mu.Unlock()
		return ErrAlreadyMounted
	}
	v.state = lifecycleMounted
	v.ctx, v.cancel = context.WithCancel(ctx)
	viewCtx := v.ctx
	v.startWatchLocked()
	v.renderLocked()
	v.mu.Unlock()

	go v.loadCatalog(viewCtx)
	if v.deps.Identity != nil {
		go v.followIdentity(viewCtx, v.deps.Identity.WatchIdentity(viewCtx))
	}
	return nil
}

// Unmount stops all background work. Results that arrive later are dropped.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == lifecycleUnmounted {
		return
	}
	v.state = lifecycleUnmounted
	v.stopWatchLocked()
	if v.cancel != nil {
		v.cancel()
	}
}

// SetIdentity applies an identity push.
func (v *View) SetIdentity(state domain.IdentityState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == lifecycleUnmounted {
		return
	}
	v.identity = cloneIdentity(state)

	if !state.IsLoaded {
		// Indeterminate: neither fire the upsert nor forget who was synced.
		v.renderLocked()
		return
	}

	user, ok := state.Authenticated()
	if !ok {
		v.syncedUserID = ""
		v.storedUser = nil
		v.userSynced = false
		v.stopWatchLocked()
		v.status = nil
		v.renderLocked()
		return
	}

	if user.ID != v.syncedUserID {
		v.syncedUserID = user.ID
		v.storedUser = nil
		v.userSynced = v.deps.Users == nil
		v.syncUser(*user)
	}
	if user.ID != v.watchUserID {
		v.stopWatchLocked()
		v.status = nil
	}
	v.startWatchLocked()
	v.renderLocked()
}

// SetSubscription applies a status push for the given user. Pushes for anyone
// other than the current signed-in user are stale and ignored.
func (v *View) SetSubscription(clerkUserID string, status domain.SubscriptionStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == lifecycleUnmounted {
		return
	}
	user, ok := v.identity.Authenticated()
	if !ok || user.ID != clerkUserID {
		return
	}
	v.status = &status
	v.renderLocked()
}

// Snapshot returns the current render.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// AwaitCatalog blocks until the catalog fetch settled, the view was unmounted,
// or ctx is done. It reports whether the catalog settled.
func (v *View) AwaitCatalog(ctx context.Context) bool {
	v.mu.Lock()
	done := v.catalogDone
	viewCtx := v.ctx
	v.mu.Unlock()

	if viewCtx == nil {
		viewCtx = context.Background()
	}
	select {
	case <-done:
		return true
	case <-viewCtx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Checkout asks the initiator for a checkout session for priceID and navigates
// to it. Failures are logged and surfaced as a notice; the view stays usable and
// nothing is retried.
func (v *View) Checkout(ctx context.Context, priceID string) error {
	v.mu.Lock()
	user, ok := v.identity.Authenticated()
	var current domain.UserRef
	if ok {
		current = *user
		if v.notice != "" {
			v.notice = ""
			v.renderLocked()
		}
	}
	v.mu.Unlock()

	if !ok {
		metrics.CheckoutAttempts.WithLabelValues("rejected").Inc()
		return ErrNotAuthenticated
	}
	if v.deps.Checkout == nil {
		return v.checkoutFailed(priceID, ErrCheckoutUnavailable)
	}

	session, err := v.deps.Checkout.CreateCheckoutSession(ctx, current, domain.CheckoutRequest{PriceID: priceID})
	if err == nil && (session == nil || strings.TrimSpace(session.URL) == "") {
		err = ErrEmptyCheckoutURL
	}
	if err != nil {
		return v.checkoutFailed(priceID, err)
	}

	if v.deps.Navigator != nil {
		if err := v.deps.Navigator.Navigate(ctx, session.URL); err != nil {
			return v.checkoutFailed(priceID, fmt.Errorf("navigate to checkout: %w", err))
		}
	}
	metrics.CheckoutAttempts.WithLabelValues("redirected").Inc()
	return nil
}

func (v *View) checkoutFailed(priceID string, err error) error {
	metrics.CheckoutAttempts.WithLabelValues("failed").Inc()
	v.logger.Error("failed to get checkout URL", "price_id", priceID, "error", err)

	v.mu.Lock()
	if v.state != lifecycleUnmounted {
		v.notice = CheckoutFailedNotice
		v.renderLocked()
	}
	v.mu.Unlock()
	return err
}

func (v *View) loadCatalog(ctx context.Context) {
	var plans []domain.PricePlan
	if v.deps.Catalog != nil {
		fetched, err := v.deps.Catalog.FetchCatalog(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			v.logger.Warn("catalog fetch failed, rendering no plans", "error", err)
		case err == nil:
			plans = fetched
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != lifecycleMounted || ctx.Err() != nil {
		return
	}
	v.plans = plans
	v.catalogReady = true
	close(v.catalogDone)
	v.renderLocked()
}

func (v *View) followIdentity(ctx context.Context, updates <-chan domain.IdentityState) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			v.SetIdentity(state)
		}
	}
}

func (v *View) followSubscription(ctx context.Context, clerkUserID string, updates <-chan domain.SubscriptionStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			v.SetSubscription(clerkUserID, status)
		}
	}
}

// startWatchLocked subscribes to the status of the current user if mounted and
// not already watching.
func (v *View) startWatchLocked() {
	if v.state != lifecycleMounted || v.deps.Subscriptions == nil || v.stopWatch != nil {
		return
	}
	user, ok := v.identity.Authenticated()
	if !ok {
		return
	}

	watchCtx, stop := context.WithCancel(v.ctx)
	v.stopWatch = stop
	v.watchUserID = user.ID
	updates := v.deps.Subscriptions.WatchSubscription(watchCtx, user.ID)
	go v.followSubscription(watchCtx, user.ID, updates)
}

func (v *View) stopWatchLocked() {
	if v.stopWatch != nil {
		v.stopWatch()
	}
	v.stopWatch = nil
	v.watchUserID = ""
}

// syncUser fires the idempotent upsert in the background. It outlives the view
// so a quick navigation away does not cut it short.
func (v *View) syncUser(user domain.UserRef) {
	if v.deps.Users == nil {
		return
	}
	base := context.Background()
	if v.ctx != nil {
		base = context.WithoutCancel(v.ctx)
	}

	go func() {
		ctx, cancel := context.WithTimeout(base, v.deps.UserSyncTimeout)
		defer cancel()

		stored, err := v.deps.Users.StoreUser(ctx, user)
		if err != nil {
			metrics.UserSyncs.WithLabelValues("failed").Inc()
			v.logger.Warn("failed to store user", "clerk_user_id", user.ID, "error", err)
		} else {
			metrics.UserSyncs.WithLabelValues("stored").Inc()
		}
		v.userStored(user.ID, stored)
	}()
}

// userStored records the outcome of the upsert for the user it was fired for.
// A nil record means the upsert failed; the render falls back to identity claims.
func (v *View) userStored(clerkUserID string, stored *domain.User) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == lifecycleUnmounted || v.syncedUserID != clerkUserID {
		return
	}
	v.storedUser = stored
	v.userSynced = true
	v.renderLocked()
}

func (v *View) renderLocked() {
	v.revision++
	if v.deps.Renderer != nil {
		v.deps.Renderer.Render(v.snapshotLocked())
	}
}

func (v *View) snapshotLocked() Snapshot {
	mode := DeriveMode(v.identity, v.status)
	snap := Snapshot{
		Revision:     v.revision,
		Mode:         mode,
		CatalogReady: v.catalogReady,
		Notice:       v.notice,
	}

	action := domain.CardActionNone
	switch mode {
	case ModeLoading:
	case ModeSignedOut:
		snap.SignIn = &AuthAction{Mode: "modal", RedirectURL: "/"}
		action = domain.CardActionSignIn
	default:
		user, _ := v.identity.Authenticated()
		u := withStoredProfile(*user, v.storedUser)
		snap.User = &u
		snap.UserSynced = v.userSynced
		if v.status != nil {
			s := *v.status
			snap.Subscription = &s
		}
		snap.SignOut = &AuthAction{RedirectURL: "/"}
		snap.Dashboards = dashboardsFor(mode)
		action = domain.CardActionCheckout
	}

	snap.Plans = pricing.Cards(v.plans, action)
	return snap
}

// withStoredProfile fills name and email the session token did not carry from
// the stored user record.
func withStoredProfile(user domain.UserRef, stored *domain.User) domain.UserRef {
	if stored == nil || stored.ClerkUserID != user.ID {
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

func cloneIdentity(state domain.IdentityState) domain.IdentityState {
	if state.User != nil {
		u := *state.User
		state.User = &u
	}
	return state
}
