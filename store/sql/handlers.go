package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is implemented by every invitation table row so one generic
// builder can produce its repository handlers. lookupColumn names the
// natural key the repository resolves identifiers against.
type keyedRecord interface {
	recordID() string
	setRecordID(id string)
	lookupColumn() string
	lookupValue() string
}

func modelHandlers[T keyedRecord](newRecord func() T) repository.ModelHandlers[T] {
	column := newRecord().lookupColumn()
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record T, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return column
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(record.lookupValue())
		},
	}
}

func invitationTokenHandlers() repository.ModelHandlers[*invitationTokenRecord] {
	return modelHandlers(func() *invitationTokenRecord { return &invitationTokenRecord{} })
}

func profileHandlers() repository.ModelHandlers[*profileRecord] {
	return modelHandlers(func() *profileRecord { return &profileRecord{} })
}

func ownedResourceHandlers() repository.ModelHandlers[*ownedResourceRecord] {
	return modelHandlers(func() *ownedResourceRecord { return &ownedResourceRecord{} })
}

func entitlementGrantHandlers() repository.ModelHandlers[*entitlementGrantRecord] {
	return modelHandlers(func() *entitlementGrantRecord { return &entitlementGrantRecord{} })
}

// Tokens are looked up by their opaque value, never by row id.
func (r *invitationTokenRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *invitationTokenRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (*invitationTokenRecord) lookupColumn() string { return "token" }

func (r *invitationTokenRecord) lookupValue() string {
	if r == nil {
		return ""
	}
	return r.Token
}

func (r *profileRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *profileRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (*profileRecord) lookupColumn() string { return "id" }

func (r *profileRecord) lookupValue() string { return r.recordID() }

func (r *ownedResourceRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ResourceID
}

func (r *ownedResourceRecord) setRecordID(id string) {
	if r != nil {
		r.ResourceID = id
	}
}

func (*ownedResourceRecord) lookupColumn() string { return "resource_id" }

func (r *ownedResourceRecord) lookupValue() string { return r.recordID() }

func (r *entitlementGrantRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *entitlementGrantRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (*entitlementGrantRecord) lookupColumn() string { return "id" }

func (r *entitlementGrantRecord) lookupValue() string { return r.recordID() }

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
