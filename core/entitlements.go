package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

type DenyReason string

const (
	DenyReasonNone                DenyReason = ""
	DenyReasonNoGrant             DenyReason = "NO_GRANT"
	DenyReasonInvalidRequest      DenyReason = "INVALID_REQUEST"
	DenyReasonResolverUnavailable DenyReason = "RESOLVER_UNAVAILABLE"
)

// DeniedUserMessage is all an end user learns about a denial. The reason
// code is kept for support.
const DeniedUserMessage = "not available"

type Decision struct {
	Allowed     bool
	Reason      DenyReason
	Source      GrantSource
	GrantID     string
	ResourceRef string
}

func (d Decision) UserMessage() string {
	if d.Allowed {
		return ""
	}
	return DeniedUserMessage
}

func allow(ref string, grant EntitlementGrant) Decision {
	return Decision{
		Allowed:     true,
		Source:      grant.Source,
		GrantID:     grant.ID,
		ResourceRef: ref,
	}
}

func deny(ref string, reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason, ResourceRef: ref}
}

// BundleCatalog maps an offer reference to the resource patterns it covers.
// A pattern is an exact ref, a "prefix:*" family or "*".
type BundleCatalog struct {
	covers map[string][]string
}

func NewBundleCatalog(bundles []BundleConfig) (BundleCatalog, error) {
	catalog := BundleCatalog{covers: make(map[string][]string, len(bundles))}
	for _, bundle := range bundles {
		ref := NormalizeResourceRef(bundle.Ref)
		if ref == "" {
			return BundleCatalog{}, fmt.Errorf("core: bundle ref is required")
		}
		for _, pattern := range bundle.Covers {
			pattern = NormalizeResourceRef(pattern)
			if pattern == "" {
				continue
			}
			catalog.covers[ref] = append(catalog.covers[ref], pattern)
		}
		if len(catalog.covers[ref]) == 0 {
			return BundleCatalog{}, fmt.Errorf("core: bundle %q covers nothing", ref)
		}
	}
	return catalog, nil
}

func (c BundleCatalog) Known(offerRef string) bool {
	_, ok := c.covers[NormalizeResourceRef(offerRef)]
	return ok
}

func (c BundleCatalog) Covers(offerRef string, resourceRef string) bool {
	resourceRef = NormalizeResourceRef(resourceRef)
	for _, pattern := range c.covers[NormalizeResourceRef(offerRef)] {
		if matchResourcePattern(pattern, resourceRef) {
			return true
		}
	}
	return false
}

func matchResourcePattern(pattern string, ref string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ":*"):
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(ref, prefix) && len(ref) > len(prefix)
	default:
		return pattern == ref
	}
}

// EvaluateGrants applies the fixed precedence to the active grants of one
// subject: admin override, direct purchase, covering bundle, then the studio
// claim for studio-tier refs only. Revoked grants never match.
func EvaluateGrants(grants []EntitlementGrant, resourceRef string, bundles BundleCatalog) Decision {
	ref := NormalizeResourceRef(resourceRef)
	if ref == "" {
		return deny(ref, DenyReasonInvalidRequest)
	}

	exact := func(source GrantSource) (EntitlementGrant, bool) {
		for _, grant := range grants {
			if grant.Active() && grant.Source == source && NormalizeResourceRef(grant.ResourceRef) == ref {
				return grant, true
			}
		}
		return EntitlementGrant{}, false
	}

	if grant, ok := exact(GrantSourceAdminOverride); ok {
		return allow(ref, grant)
	}
	if grant, ok := exact(GrantSourceDirectPurchase); ok {
		return allow(ref, grant)
	}
	for _, grant := range grants {
		if grant.Active() && grant.Source == GrantSourceBundledOffer && bundles.Covers(grant.ResourceRef, ref) {
			return allow(ref, grant)
		}
	}
	if IsStudioTier(ref) {
		for _, grant := range grants {
			if grant.Active() &&
				grant.Source == GrantSourceInvitationClaim &&
				NormalizeResourceRef(grant.ResourceRef) == StudioResourceRef {
				return allow(ref, grant)
			}
		}
	}
	return deny(ref, DenyReasonNoGrant)
}

// ResolveEntitlement decides whether identity may access resourceRef. It has
// no side effects beyond logs and metrics and fails closed.
func (s *Service) ResolveEntitlement(ctx context.Context, identity string, resourceRef string) (decision Decision) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"identity":     strings.TrimSpace(identity),
		"resource_ref": NormalizeResourceRef(resourceRef),
	}
	ctx, span := s.startSpan(ctx, "resolve_entitlement",
		attribute.String("invites.resource_ref", NormalizeResourceRef(resourceRef)),
	)
	defer func() {
		fields["allowed"] = decision.Allowed
		if decision.Allowed {
			fields["source"] = string(decision.Source)
			fields["grant_id"] = decision.GrantID
		} else {
			fields["reason"] = string(decision.Reason)
		}
		span.SetAttributes(attribute.Bool("invites.allowed", decision.Allowed))
		endSpan(span, nil)
		s.observeOperation(ctx, startedAt, "resolve_entitlement", nil, fields)
	}()

	return s.decide(ctx, identity, resourceRef)
}

func (s *Service) decide(ctx context.Context, identity string, resourceRef string) (decision Decision) {
	ref := NormalizeResourceRef(resourceRef)
	identity = strings.TrimSpace(identity)
	if identity == "" || ref == "" {
		return deny(ref, DenyReasonInvalidRequest)
	}
	if s == nil || s.grantStore == nil {
		return deny(ref, DenyReasonResolverUnavailable)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logError(ctx, "entitlement resolver panicked", map[string]any{
				"identity":     identity,
				"resource_ref": ref,
				"error":        fmt.Sprint(recovered),
			})
			decision = deny(ref, DenyReasonResolverUnavailable)
		}
	}()

	grants, err := s.grantStore.ListActive(ctx, identity)
	if err != nil {
		s.logError(ctx, "entitlement grants unavailable", map[string]any{
			"identity":     identity,
			"resource_ref": ref,
			"error":        err.Error(),
		})
		return deny(ref, DenyReasonResolverUnavailable)
	}
	return EvaluateGrants(grants, ref, s.bundles)
}
