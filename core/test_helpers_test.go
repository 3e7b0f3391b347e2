package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryTokenStore struct {
	mu      sync.Mutex
	next    int
	byToken map[string]InvitationToken
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{byToken: map[string]InvitationToken{}}
}

func (s *memoryTokenStore) Create(_ context.Context, in IssueTokenInput) (InvitationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[in.Token]; exists {
		return InvitationToken{}, fmt.Errorf("memory token store: duplicate token")
	}
	s.next++
	token := InvitationToken{
		ID:               fmt.Sprintf("tok_%d", s.next),
		Token:            in.Token,
		TargetResourceID: in.TargetResourceID,
		Status:           TokenStatusIssued,
		IssuedAt:         in.IssuedAt,
		ExpiresAt:        in.ExpiresAt,
	}
	s.byToken[in.Token] = token
	return token, nil
}

func (s *memoryTokenStore) Lookup(_ context.Context, token string) (InvitationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byToken[token]
	if !ok {
		return InvitationToken{}, ErrTokenNotFound
	}
	return record, nil
}

func (s *memoryTokenStore) MarkConsumed(_ context.Context, token string, identity string, now time.Time) (InvitationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byToken[token]
	if !ok {
		return InvitationToken{}, ErrTokenNotFound
	}
	if record.Status != TokenStatusIssued || !record.ExpiresAt.After(now) {
		if record.Status == TokenStatusConsumed {
			return InvitationToken{}, ErrTokenAlreadyConsumed
		}
		return InvitationToken{}, ErrTokenExpired
	}
	consumedAt := now
	record.Status = TokenStatusConsumed
	record.ConsumedBy = identity
	record.ConsumedAt = &consumedAt
	s.byToken[token] = record
	return record, nil
}

func (s *memoryTokenStore) MarkExpired(_ context.Context, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byToken[token]
	if !ok {
		return ErrTokenNotFound
	}
	if record.Status == TokenStatusIssued && !record.ExpiresAt.After(now) {
		record.Status = TokenStatusExpired
		s.byToken[token] = record
	}
	return nil
}

func (s *memoryTokenStore) MarkClaimSettled(_ context.Context, token string, settlement ClaimSettlement, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byToken[token]
	if !ok {
		return ErrTokenNotFound
	}
	if record.Status != TokenStatusConsumed || record.ClaimSettled() {
		return nil
	}
	settledAt := at
	if settlement == ClaimSettlementFailed {
		record.ClaimFailedAt = &settledAt
	} else {
		record.ClaimCompletedAt = &settledAt
	}
	s.byToken[token] = record
	return nil
}

type memoryProfileStore struct {
	mu        sync.Mutex
	next      int
	byID      map[string]Profile
	resources *memoryResourceStore
	bindErr   error
	updateErr error
}

func newMemoryProfileStore(resources *memoryResourceStore) *memoryProfileStore {
	return &memoryProfileStore{byID: map[string]Profile{}, resources: resources}
}

func (s *memoryProfileStore) Create(_ context.Context, in CreateProfileInput) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	profile := Profile{
		ID:          fmt.Sprintf("prof_%d", s.next),
		Kind:        in.Kind,
		Status:      in.Status,
		DisplayName: in.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[profile.ID] = profile
	return profile, nil
}

func (s *memoryProfileStore) Get(_ context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.byID[id]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (s *memoryProfileStore) BindOwner(_ context.Context, id string, identity string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindErr != nil {
		return Profile{}, s.bindErr
	}
	profile, ok := s.byID[id]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	switch profile.OwnerIdentity {
	case "":
		profile.OwnerIdentity = identity
		s.byID[id] = profile
		return profile, nil
	case identity:
		return profile, nil
	default:
		return Profile{}, ErrOwnerMismatch
	}
}

func (s *memoryProfileStore) UpdateStatus(_ context.Context, id string, from ProfileStatus, to ProfileStatus) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return Profile{}, s.updateErr
	}
	profile, ok := s.byID[id]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	if profile.Status != from {
		return Profile{}, fmt.Errorf("%w: status changed to %s", ErrInvalidProfileTransition, profile.Status)
	}
	profile.Status = to
	if from == ProfileStatusPending && to == ProfileStatusActive {
		profile.Kind = ProfileKindMember
	}
	profile.UpdatedAt = time.Now().UTC()
	s.byID[id] = profile
	if to == ProfileStatusDeleted && s.resources != nil {
		s.resources.deleteByProfile(id)
	}
	return profile, nil
}

func (s *memoryProfileStore) SetStudioAccess(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.byID[id]
	if !ok {
		return ErrProfileNotFound
	}
	profile.StudioAccess = enabled
	s.byID[id] = profile
	return nil
}

func (s *memoryProfileStore) FindByOwner(_ context.Context, identity string) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Profile{}
	for _, profile := range s.byID {
		if profile.OwnerIdentity == identity {
			out = append(out, profile)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryResourceStore struct {
	mu    sync.Mutex
	next  int
	byID  map[string]OwnedResource
	order []string
}

func newMemoryResourceStore() *memoryResourceStore {
	return &memoryResourceStore{byID: map[string]OwnedResource{}}
}

func (s *memoryResourceStore) Create(_ context.Context, in CreateResourceInput) (OwnedResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	resource := OwnedResource{
		ResourceID: fmt.Sprintf("res_%d", s.next),
		ProfileID:  in.ProfileID,
		Kind:       in.Kind,
		CreatedAt:  time.Now().UTC(),
	}
	s.byID[resource.ResourceID] = resource
	s.order = append(s.order, resource.ResourceID)
	return resource, nil
}

func (s *memoryResourceStore) Get(_ context.Context, resourceID string) (OwnedResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.byID[resourceID]
	if !ok {
		return OwnedResource{}, ErrResourceNotFound
	}
	return resource, nil
}

func (s *memoryResourceStore) ListByProfile(_ context.Context, profileID string) ([]OwnedResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []OwnedResource{}
	for _, id := range s.order {
		resource, ok := s.byID[id]
		if ok && resource.ProfileID == profileID {
			out = append(out, resource)
		}
	}
	return out, nil
}

func (s *memoryResourceStore) deleteByProfile(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, resource := range s.byID {
		if resource.ProfileID == profileID {
			delete(s.byID, id)
		}
	}
}

type memoryGrantStore struct {
	mu        sync.Mutex
	next      int
	grants    []EntitlementGrant
	appendErr error
	listErr   error
}

func newMemoryGrantStore() *memoryGrantStore {
	return &memoryGrantStore{}
}

func (s *memoryGrantStore) Append(_ context.Context, in AppendGrantInput) (EntitlementGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return EntitlementGrant{}, s.appendErr
	}
	for _, grant := range s.grants {
		if grant.Active() &&
			grant.SubjectIdentity == in.SubjectIdentity &&
			grant.ResourceRef == in.ResourceRef &&
			grant.Source == in.Source &&
			grant.SourceRef == in.SourceRef {
			return grant, nil
		}
	}
	s.next++
	grant := EntitlementGrant{
		ID:              fmt.Sprintf("grant_%d", s.next),
		SubjectIdentity: in.SubjectIdentity,
		ResourceRef:     in.ResourceRef,
		Source:          in.Source,
		SourceRef:       in.SourceRef,
		GrantedAt:       in.GrantedAt,
		Metadata:        in.Metadata,
	}
	s.grants = append(s.grants, grant)
	return grant, nil
}

func (s *memoryGrantStore) Revoke(_ context.Context, id string, reason string, at time.Time) (EntitlementGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index, grant := range s.grants {
		if grant.ID != id {
			continue
		}
		if grant.RevokedAt != nil {
			return EntitlementGrant{}, ErrGrantAlreadyRevoked
		}
		revokedAt := at
		grant.RevokedAt = &revokedAt
		grant.RevocationReason = reason
		s.grants[index] = grant
		return grant, nil
	}
	return EntitlementGrant{}, ErrGrantNotFound
}

func (s *memoryGrantStore) Get(_ context.Context, id string) (EntitlementGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, grant := range s.grants {
		if grant.ID == id {
			return grant, nil
		}
	}
	return EntitlementGrant{}, ErrGrantNotFound
}

func (s *memoryGrantStore) ListActive(_ context.Context, subject string) ([]EntitlementGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []EntitlementGrant{}
	for _, grant := range s.grants {
		if grant.SubjectIdentity == subject && grant.Active() {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (s *memoryGrantStore) ListBySubject(_ context.Context, subject string) ([]EntitlementGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []EntitlementGrant{}
	for _, grant := range s.grants {
		if grant.SubjectIdentity == subject {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (s *memoryGrantStore) count(subject string, ref string, source GrantSource) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, grant := range s.grants {
		if grant.SubjectIdentity == subject && grant.ResourceRef == ref && grant.Source == source {
			total++
		}
	}
	return total
}

type memoryStores struct {
	tokens    *memoryTokenStore
	profiles  *memoryProfileStore
	resources *memoryResourceStore
	grants    *memoryGrantStore
}

func newMemoryStores() *memoryStores {
	resources := newMemoryResourceStore()
	return &memoryStores{
		tokens:    newMemoryTokenStore(),
		profiles:  newMemoryProfileStore(resources),
		resources: resources,
		grants:    newMemoryGrantStore(),
	}
}

func (m *memoryStores) TokenStore() TokenStore       { return m.tokens }
func (m *memoryStores) ProfileStore() ProfileStore   { return m.profiles }
func (m *memoryStores) ResourceStore() ResourceStore { return m.resources }
func (m *memoryStores) GrantStore() GrantStore       { return m.grants }

type memoryStoreFactory struct {
	stores *memoryStores
	client any
}

func (f *memoryStoreFactory) BuildStores(client any) (StoreProvider, error) {
	f.client = client
	return f.stores, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceTokenGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequenceTokenGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("invite-token-%04d", g.next), nil
}

type recordingAlertSink struct {
	mu     sync.Mutex
	alerts []ClaimAlert
	err    error
}

func (s *recordingAlertSink) ClaimPartialFailure(_ context.Context, alert ClaimAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.err
}

func (s *recordingAlertSink) snapshot() []ClaimAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ClaimAlert(nil), s.alerts...)
}

type recordingPurgeScheduler struct {
	mu     sync.Mutex
	purges []ProfilePurge
}

func (s *recordingPurgeScheduler) SchedulePurge(_ context.Context, purge ProfilePurge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purges = append(s.purges, purge)
	return nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testHarness struct {
	svc     *Service
	stores  *memoryStores
	clock   *manualClock
	alerts  *recordingAlertSink
	purges  *recordingPurgeScheduler
	logger  *captureLogger
	metrics *captureMetricsRecorder
}

func newTestHarness(t interface{ Fatalf(string, ...any) }, opts ...Option) *testHarness {
	h := &testHarness{
		stores:  newMemoryStores(),
		clock:   newManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		alerts:  &recordingAlertSink{},
		purges:  &recordingPurgeScheduler{},
		logger:  newCaptureLogger(),
		metrics: &captureMetricsRecorder{},
	}
	base := []Option{
		WithRepositoryFactory(h.stores),
		WithClock(h.clock.Now),
		WithTokenGenerator(&sequenceTokenGenerator{}),
		WithAlertSink(h.alerts),
		WithPurgeScheduler(h.purges),
		WithLogger(h.logger),
		WithLoggerProvider(stubLoggerProvider{logger: h.logger}),
		WithMetricsRecorder(h.metrics),
		WithClaimSettleWait(50*time.Millisecond, time.Millisecond),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

// invite seeds a guest profile with a wardrobe and returns the issued token.
func (h *testHarness) invite(t interface{ Fatalf(string, ...any) }) InviteResult {
	result, err := h.svc.Invite(context.Background(), InviteRequest{DisplayName: "Guest client"})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	return result
}

func hasLogContaining(items []capturedLog, level string, fragment string) bool {
	for _, item := range items {
		if item.level == level && strings.Contains(item.msg, fragment) {
			return true
		}
	}
	return false
}
