package core

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type CreateGuestProfileRequest struct {
	DisplayName string
}

type AttachResourceRequest struct {
	ProfileID string
	Kind      ResourceKind
}

type TransitionProfileRequest struct {
	ProfileID string
	To        ProfileStatus
}

func (s *Service) CreateGuestProfile(ctx context.Context, req CreateGuestProfileRequest) (profile Profile, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		if profile.ID != "" {
			fields["profile_id"] = profile.ID
		}
		s.observeOperation(ctx, startedAt, "create_guest_profile", err, fields)
	}()

	if err = s.requireStores("profile"); err != nil {
		return Profile{}, s.mapError(err)
	}
	profile, err = s.profileStore.Create(ctx, CreateProfileInput{
		Kind:        ProfileKindGuest,
		Status:      ProfileStatusPending,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		err = s.mapError(err)
		return Profile{}, err
	}
	return profile, nil
}

func (s *Service) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	if err := s.requireStores("profile"); err != nil {
		return Profile{}, s.mapError(err)
	}
	profile, err := s.profileStore.Get(ctx, strings.TrimSpace(profileID))
	if err != nil {
		return Profile{}, s.mapError(err)
	}
	return profile, nil
}

func (s *Service) ListResources(ctx context.Context, profileID string) ([]OwnedResource, error) {
	if err := s.requireStores("resource"); err != nil {
		return nil, s.mapError(err)
	}
	resources, err := s.resourceStore.ListByProfile(ctx, strings.TrimSpace(profileID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return resources, nil
}

// AttachResource records a resource owned by profileID. Deleted profiles
// cannot own resources.
func (s *Service) AttachResource(ctx context.Context, req AttachResourceRequest) (resource OwnedResource, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"profile_id":    req.ProfileID,
		"resource_kind": string(req.Kind),
	}
	defer func() {
		if resource.ResourceID != "" {
			fields["resource_id"] = resource.ResourceID
		}
		s.observeOperation(ctx, startedAt, "attach_resource", err, fields)
	}()

	if err = s.requireStores("profile", "resource"); err != nil {
		return OwnedResource{}, s.mapError(err)
	}
	if !req.Kind.Valid() {
		err = goerrors.NewValidation("invalid resource", goerrors.FieldError{
			Field:   "kind",
			Message: "must be one of wardrobe, essence_response, tailor_measurement",
		}).WithTextCode(ErrorCodeBadInput)
		return OwnedResource{}, err
	}
	profile, err := s.profileStore.Get(ctx, strings.TrimSpace(req.ProfileID))
	if err != nil {
		err = s.mapError(err)
		return OwnedResource{}, err
	}
	if profile.Status == ProfileStatusDeleted {
		err = s.mapError(ErrProfileDeleted)
		return OwnedResource{}, err
	}
	resource, err = s.resourceStore.Create(ctx, CreateResourceInput{
		ProfileID: profile.ID,
		Kind:      req.Kind,
	})
	if err != nil {
		err = s.mapError(err)
		return OwnedResource{}, err
	}
	return resource, nil
}

// TransitionProfile moves a profile along the status table. The write is
// conditional on the status read here, so a concurrent transition fails
// instead of being overwritten.
func (s *Service) TransitionProfile(ctx context.Context, req TransitionProfileRequest) (profile Profile, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"profile_id": req.ProfileID,
		"to":         string(req.To),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "transition_profile", err, fields)
	}()

	if err = s.requireStores("profile", "resource"); err != nil {
		return Profile{}, s.mapError(err)
	}
	current, err := s.profileStore.Get(ctx, strings.TrimSpace(req.ProfileID))
	if err != nil {
		err = s.mapError(err)
		return Profile{}, err
	}
	fields["from"] = string(current.Status)

	var resourceIDs []string
	if req.To == ProfileStatusDeleted {
		resourceIDs, err = s.ownedResourceIDs(ctx, current.ID)
		if err != nil {
			err = s.mapError(err)
			return Profile{}, err
		}
	}

	profile, err = s.applyTransition(ctx, current, req.To)
	if err != nil {
		err = s.mapError(err)
		return Profile{}, err
	}

	if profile.Status == ProfileStatusDeleted {
		s.schedulePurge(ctx, ProfilePurge{
			ProfileID:   profile.ID,
			ResourceIDs: resourceIDs,
			PurgedAt:    s.now(),
		})
	}
	return profile, nil
}

func (s *Service) applyTransition(ctx context.Context, current Profile, next ProfileStatus) (Profile, error) {
	if err := ValidateProfileTransition(current.Status, next); err != nil {
		return Profile{}, err
	}
	return s.profileStore.UpdateStatus(ctx, current.ID, current.Status, next)
}

func (s *Service) schedulePurge(ctx context.Context, purge ProfilePurge) {
	if s.purgeScheduler == nil {
		return
	}
	if err := s.purgeScheduler.SchedulePurge(ctx, purge); err != nil {
		s.logError(ctx, "profile purge not scheduled", map[string]any{
			"profile_id":     purge.ProfileID,
			"resource_count": len(purge.ResourceIDs),
			"error":          err.Error(),
		})
	}
}

// BindOwner sets the owner of a profile once. Binding the same identity again
// is a no-op and a different identity fails with ErrOwnerMismatch.
func (s *Service) BindOwner(ctx context.Context, profileID string, identity string) (profile Profile, err error) {
	startedAt := time.Now().UTC()
	identity = strings.TrimSpace(identity)
	fields := map[string]any{
		"profile_id": profileID,
		"identity":   identity,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "bind_owner", err, fields)
	}()

	if err = s.requireStores("profile"); err != nil {
		return Profile{}, s.mapError(err)
	}
	if identity == "" {
		err = s.mapError(ErrIdentityRequired)
		return Profile{}, err
	}
	profile, err = s.profileStore.BindOwner(ctx, strings.TrimSpace(profileID), identity)
	if err != nil {
		err = s.mapError(err)
		return Profile{}, err
	}
	return profile, nil
}

// RefreshStudioAccess recomputes the cached studio flag on every live profile
// owned by identity from the current grants.
func (s *Service) RefreshStudioAccess(ctx context.Context, identity string) (profiles []Profile, err error) {
	startedAt := time.Now().UTC()
	identity = strings.TrimSpace(identity)
	fields := map[string]any{"identity": identity}
	defer func() {
		fields["profile_count"] = len(profiles)
		s.observeOperation(ctx, startedAt, "refresh_studio_access", err, fields)
	}()

	if err = s.requireStores("profile", "grant"); err != nil {
		return nil, s.mapError(err)
	}
	if identity == "" {
		err = s.mapError(ErrIdentityRequired)
		return nil, err
	}
	decision := s.decide(ctx, identity, StudioResourceRef)
	if decision.Reason == DenyReasonResolverUnavailable {
		err = s.mapError(errors.New("core: entitlement resolver unavailable"))
		return nil, err
	}
	fields["studio_access"] = decision.Allowed

	owned, err := s.profileStore.FindByOwner(ctx, identity)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	profiles = make([]Profile, 0, len(owned))
	for _, profile := range owned {
		if profile.Status == ProfileStatusDeleted {
			continue
		}
		if profile.StudioAccess != decision.Allowed {
			if err = s.profileStore.SetStudioAccess(ctx, profile.ID, decision.Allowed); err != nil {
				err = s.mapError(err)
				return nil, err
			}
			profile.StudioAccess = decision.Allowed
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}
