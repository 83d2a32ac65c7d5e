package ecosystem

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/orgctl/orgctl/internal/cache"
	"github.com/orgctl/orgctl/internal/directory"
	"github.com/orgctl/orgctl/internal/ocerrors"
)

// Application classification relative to the requesting user.
const (
	AppTypeFirstParty = "first-party"
	AppTypeThirdParty = "third-party"
)

// Pseudo-organization labels for access that is not bound to one specific
// organization.
const (
	labelNoAccess        = "No Access"
	labelPlatformAccess  = "Platform Access"
	labelOrgMemberAccess = "Organization Member Access"
	pseudoOrgPlatform    = "standalone"
	pseudoOrgMember      = "member"
)

const (
	// DefaultCacheTTL bounds how long a per-user app list is served from
	// cache before it is recomputed.
	DefaultCacheTTL = 300 * time.Second
	// DefaultScanLimit caps concurrent directory calls during the
	// full-catalog membership scan.
	DefaultScanLimit = 4
)

// App is the per-user view of one catalog application. AppType is a property
// of the application; HasAccess, OrganizationID and OrganizationName are
// relative to the requesting user and must never be shared across users.
type App struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	IconURL     string `json:"iconUrl,omitempty"`

	AppType          string     `json:"appType"`
	HasAccess        bool       `json:"hasAccess"`
	OrganizationID   string     `json:"organizationId,omitempty"`
	OrganizationName string     `json:"organizationName,omitempty"`
	Permissions      []string   `json:"permissions"`
	LastAccessed     *time.Time `json:"lastAccessed,omitempty"`
}

// AccessStats summarizes a user's ecosystem access.
type AccessStats struct {
	TotalApps         int `json:"totalApps"`
	ActiveAccess      int `json:"activeAccess"`
	OrganizationCount int `json:"organizationCount"`
}

// Resolver decides, per user and per application, whether access is
// organization-derived (first-party) or consent-derived (third-party), and
// mutates consent through the directory. Results are cached per user for a
// bounded TTL and invalidated on every mutation.
type Resolver struct {
	directory directory.Directory
	cache     cache.Store[[]App]
	log       logrus.FieldLogger

	ttl          time.Duration
	scanLimit    int
	cacheMetrics func(hit bool)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL overrides the per-user result TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithScanLimit overrides the concurrency cap of the full-catalog scan.
func WithScanLimit(limit int) Option {
	return func(r *Resolver) { r.scanLimit = limit }
}

// WithCacheMetrics installs a hook reporting cache hits and misses.
func WithCacheMetrics(cb func(hit bool)) Option {
	return func(r *Resolver) { r.cacheMetrics = cb }
}

func NewResolver(dir directory.Directory, store cache.Store[[]App], log logrus.FieldLogger, opts ...Option) *Resolver {
	r := &Resolver{
		directory: dir,
		cache:     store,
		log:       log,
		ttl:       DefaultCacheTTL,
		scanLimit: DefaultScanLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cacheKey(userID string) string {
	return fmt.Sprintf("user:%s:ecosystem-apps", userID)
}

// GetUserEcosystemApps resolves the user's view of the full application
// catalog. userOrgs is the organization membership asserted by the user's
// token and may be empty when the caller could not supply it, in which case
// first-party resolution falls back to scanning the whole catalog. A failure
// fetching the catalogs is fatal; a failure resolving one application is
// logged and that application is skipped.
func (r *Resolver) GetUserEcosystemApps(ctx context.Context, userID string, userOrgs []string) ([]App, error) {
	key := cacheKey(userID)
	if cached, ok := r.cache.Get(key); ok {
		if r.cacheMetrics != nil {
			r.cacheMetrics(true)
		}
		return cached, nil
	}
	if r.cacheMetrics != nil {
		r.cacheMetrics(false)
	}

	apps, err := r.directory.ListApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching application catalog: %w", err)
	}
	orgs, err := r.directory.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching organization catalog: %w", err)
	}

	firstParty := lo.Filter(apps, func(a directory.Application, _ int) bool {
		return a.IsInteractive() && !a.IsThirdParty
	})
	thirdParty := lo.Filter(apps, func(a directory.Application, _ int) bool {
		return a.IsThirdParty
	})

	result := make([]App, 0, len(firstParty)+len(thirdParty))
	for _, app := range append(firstParty, thirdParty...) {
		resolved, err := r.resolveApp(ctx, app, userID, userOrgs, orgs)
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"application": app.ID,
				"user":        userID,
			}).Warn("skipping application during access resolution")
			continue
		}
		result = append(result, resolved)
	}

	r.cache.Set(key, result, r.ttl)
	return result, nil
}

func (r *Resolver) resolveApp(ctx context.Context, app directory.Application, userID string, userOrgs []string, orgs []directory.Organization) (App, error) {
	resolved := App{
		ID:          app.ID,
		Name:        app.Name,
		Description: app.Description,
		URL:         appURL(app),
		AppType:     AppTypeFirstParty,
		Permissions: []string{},
	}

	if app.IsThirdParty {
		resolved.AppType = AppTypeThirdParty
		consented, err := r.directory.ListConsentOrganizations(ctx, app.ID, userID)
		if err != nil {
			return App{}, err
		}
		if len(consented) > 0 {
			chosen := pickConsentOrganization(consented)
			resolved.HasAccess = true
			resolved.OrganizationID = chosen.ID
			resolved.OrganizationName = chosen.Name
		} else {
			resolved.OrganizationName = labelNoAccess
		}
		return resolved, nil
	}

	// First-party: organization membership decides access. Prefer the
	// token-asserted organizations, falling back to a catalog-wide scan.
	if org, found := r.findAppOrganization(ctx, app.ID, userOrgs, orgs); found {
		resolved.HasAccess = true
		resolved.OrganizationID = org.ID
		resolved.OrganizationName = org.Name
		return resolved, nil
	}

	switch {
	case isPlatformApp(app):
		resolved.HasAccess = true
		resolved.OrganizationID = pseudoOrgPlatform
		resolved.OrganizationName = labelPlatformAccess
	case len(userOrgs) > 0 || r.isMemberOfAny(ctx, userID, orgs):
		resolved.HasAccess = true
		resolved.OrganizationID = pseudoOrgMember
		resolved.OrganizationName = labelOrgMemberAccess
	default:
		resolved.OrganizationName = labelNoAccess
	}
	return resolved, nil
}

// findAppOrganization locates the organization whose application registry
// contains appID. With token-provided organizations the search is a
// sequential short-circuit walk in token order; without them every catalog
// organization is scanned with bounded concurrency. A lookup failure on one
// organization means "not registered there", never a failed scan.
func (r *Resolver) findAppOrganization(ctx context.Context, appID string, userOrgs []string, orgs []directory.Organization) (directory.Organization, bool) {
	orgsByID := lo.KeyBy(orgs, func(o directory.Organization) string { return o.ID })

	if len(userOrgs) > 0 {
		for _, orgID := range userOrgs {
			if r.orgHasApp(ctx, orgID, appID) {
				if org, known := orgsByID[orgID]; known {
					return org, true
				}
				return directory.Organization{ID: orgID, Name: orgID}, true
			}
		}
		return directory.Organization{}, false
	}

	return r.scanOrganizations(ctx, orgs, func(scanCtx context.Context, org directory.Organization) bool {
		return r.orgHasApp(scanCtx, org.ID, appID)
	})
}

// isMemberOfAny reports whether the user appears in any organization's member
// list, scanned with bounded concurrency.
func (r *Resolver) isMemberOfAny(ctx context.Context, userID string, orgs []directory.Organization) bool {
	_, found := r.scanOrganizations(ctx, orgs, func(scanCtx context.Context, org directory.Organization) bool {
		members, err := r.directory.ListOrganizationMembers(scanCtx, org.ID)
		if err != nil {
			r.log.WithError(err).WithField("organization", org.ID).Debug("skipping organization during membership scan")
			return false
		}
		return lo.SomeBy(members, func(m directory.UserRef) bool { return m.ID == userID })
	})
	return found
}

// scanOrganizations fans out over orgs with bounded concurrency and returns
// the first organization for which match reports true. The first hit cancels
// the remaining lookups.
func (r *Resolver) scanOrganizations(ctx context.Context, orgs []directory.Organization, match func(context.Context, directory.Organization) bool) (directory.Organization, bool) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		hit   directory.Organization
		found bool
	)

	group, groupCtx := errgroup.WithContext(scanCtx)
	group.SetLimit(r.scanLimit)
	for _, org := range orgs {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if match(groupCtx, org) {
				mu.Lock()
				if !found {
					hit = org
					found = true
				}
				mu.Unlock()
				cancel()
			}
			return nil
		})
	}
	_ = group.Wait()

	return hit, found
}

func (r *Resolver) orgHasApp(ctx context.Context, orgID, appID string) bool {
	apps, err := r.directory.ListOrganizationApplications(ctx, orgID)
	if err != nil {
		r.log.WithError(err).WithField("organization", orgID).Debug("skipping organization during application scan")
		return false
	}
	return lo.SomeBy(apps, func(a directory.Application) bool { return a.ID == appID })
}

// GrantUserAppAccess grants the user access to the application. Third-party
// applications receive consent for the token-asserted organizations, or for
// every catalog organization when none were supplied; the over-broad grant
// stays pending until an admin approves it. First-party access is implied by organization
// membership and records nothing; the call fails when the user belongs to no
// organization. The user's cached app list is invalidated on success.
func (r *Resolver) GrantUserAppAccess(ctx context.Context, userID, applicationID string, userOrgs []string) error {
	app, err := r.directory.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}

	if app.IsThirdParty {
		grantOrgs := userOrgs
		if len(grantOrgs) == 0 {
			orgs, err := r.directory.ListOrganizations(ctx)
			if err != nil {
				return fmt.Errorf("fetching organization catalog: %w", err)
			}
			if len(orgs) == 0 {
				return ocerrors.ErrNoOrganizations
			}
			grantOrgs = lo.Map(orgs, func(o directory.Organization, _ int) string { return o.ID })
			r.log.WithFields(logrus.Fields{
				"application": applicationID,
				"user":        userID,
			}).Warn("no token organizations supplied; granting consent for all organizations pending admin approval")
		}
		if err := r.directory.GrantConsentOrganizations(ctx, applicationID, userID, grantOrgs); err != nil {
			return err
		}
	} else if !isPlatformApp(*app) {
		orgs, err := r.directory.ListOrganizations(ctx)
		if err != nil {
			return fmt.Errorf("fetching organization catalog: %w", err)
		}
		if len(userOrgs) == 0 && !r.isMemberOfAny(ctx, userID, orgs) {
			return ocerrors.ErrNotOrganizationMember
		}
		// Membership exists: first-party access is implied by it, even when
		// the application is not registered in any organization's app set.
	}

	r.cache.Delete(cacheKey(userID))
	return nil
}

// RevokeUserAppAccess revokes every recorded consent for the pair, one
// organization at a time. For first-party applications there are no consent
// records and the call is a no-op. The cached app list is invalidated even
// when a revoke fails mid-loop, so a partial revocation is never served from
// cache.
func (r *Resolver) RevokeUserAppAccess(ctx context.Context, userID, applicationID string) error {
	consented, err := r.directory.ListConsentOrganizations(ctx, applicationID, userID)
	if err != nil {
		return err
	}
	defer r.cache.Delete(cacheKey(userID))
	for _, org := range consented {
		if err := r.directory.RevokeConsentOrganization(ctx, applicationID, userID, org.ID); err != nil {
			return err
		}
	}
	return nil
}

// CheckUserAppAccess reports whether at least one consent organization is
// recorded for the pair. It is a lightweight gate for third-party consent
// and deliberately does not apply first-party resolution.
func (r *Resolver) CheckUserAppAccess(ctx context.Context, userID, applicationID string) (bool, error) {
	consented, err := r.directory.ListConsentOrganizations(ctx, applicationID, userID)
	if err != nil {
		return false, err
	}
	return len(consented) > 0, nil
}

// GetUserAccessStats derives summary counts from the resolved app list.
// OrganizationCount covers distinct organization ids including the
// pseudo-organizations.
func (r *Resolver) GetUserAccessStats(ctx context.Context, userID string, userOrgs []string) (AccessStats, error) {
	apps, err := r.GetUserEcosystemApps(ctx, userID, userOrgs)
	if err != nil {
		return AccessStats{}, err
	}

	stats := AccessStats{TotalApps: len(apps)}
	orgIDs := make(map[string]bool)
	for _, app := range apps {
		if app.HasAccess {
			stats.ActiveAccess++
		}
		if app.OrganizationID != "" {
			orgIDs[app.OrganizationID] = true
		}
	}
	stats.OrganizationCount = len(orgIDs)
	return stats, nil
}

// pickConsentOrganization chooses deterministically among multiple consented
// organizations: lowest name first, id as tie-break. The directory's return
// order is not stable enough to rely on.
func pickConsentOrganization(orgs []directory.Organization) directory.Organization {
	chosen := orgs[0]
	for _, org := range orgs[1:] {
		if org.Name < chosen.Name || (org.Name == chosen.Name && org.ID < chosen.ID) {
			chosen = org
		}
	}
	return chosen
}

// isPlatformApp reports whether the application is platform-global: the
// explicit catalog flag wins, with the historical name heuristic retained
// for catalogs that do not set it.
func isPlatformApp(app directory.Application) bool {
	if app.PlatformGlobal() {
		return true
	}
	name := strings.ToLower(app.Name)
	return strings.Contains(name, "ecosystem") || strings.Contains(name, "platform")
}

// appURL derives a display URL from the application's first registered
// redirect URI, keeping only scheme and host. Absent or unparseable URIs
// yield an empty URL.
func appURL(app directory.Application) string {
	if len(app.OidcMetadata.RedirectUris) == 0 {
		return ""
	}
	parsed, err := url.Parse(app.OidcMetadata.RedirectUris[0])
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
