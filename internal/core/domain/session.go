package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session keys are namespaced so the SAML state stays isolated from any
// unrelated data an application keeps in the same session.
const (
	KeySubjectID          = "_samlsp_subject_id"
	KeyOutstandingQueries = "_samlsp_outstanding_queries"
	KeyIdentityCache      = "_samlsp_identity_cache"
	KeyProtocolState      = "_samlsp_state"
)

// Session is the key/value view of one browser session. Values are stored
// as raw JSON so a SessionStore can persist the whole bag verbatim. A
// session is created lazily on first interaction and tracks whether it has
// been mutated since it was loaded.
type Session struct {
	values map[string]json.RawMessage
	dirty  bool
}

// NewSession creates an empty, clean session.
func NewSession() *Session {
	return &Session{values: make(map[string]json.RawMessage)}
}

// RestoreSession rebuilds a session from previously persisted values.
// The restored session is clean.
func RestoreSession(values map[string]json.RawMessage) *Session {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	return &Session{values: values}
}

// Get unmarshals the value stored under key into v. It reports whether the
// key was present and decodable.
func (s *Session) Get(key string, v any) bool {
	raw, ok := s.values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Set stores v under key and marks the session dirty.
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session value %q: %w", key, err)
	}
	s.values[key] = raw
	s.dirty = true
	return nil
}

// Delete removes key. Deleting an absent key is a no-op and does not mark
// the session dirty.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// Dirty reports whether the session has unpersisted mutations.
func (s *Session) Dirty() bool {
	return s.dirty
}

// MarkClean is called by a SessionStore after a successful save.
func (s *Session) MarkClean() {
	s.dirty = false
}

// Values exposes the raw value bag for persistence by a SessionStore.
func (s *Session) Values() map[string]json.RawMessage {
	return s.values
}

// SubjectID returns the authenticated principal's subject identifier, if
// any. An anonymous session has no subject.
func (s *Session) SubjectID() (string, bool) {
	var id string
	if !s.Get(KeySubjectID, &id) || id == "" {
		return "", false
	}
	return id, true
}

// SetSubjectID records the authenticated subject.
func (s *Session) SetSubjectID(id string) error {
	return s.Set(KeySubjectID, id)
}

// ClearSubjectID returns the session to the anonymous state.
func (s *Session) ClearSubjectID() {
	s.Delete(KeySubjectID)
}

// OutstandingQueries tracks in-flight authentication requests: the request
// identifier issued at login time, mapped to the destination the caller
// wanted to land on afterwards.
type OutstandingQueries struct {
	s *Session
}

// NewOutstandingQueries returns the outstanding-query view of a session.
func NewOutstandingQueries(s *Session) *OutstandingQueries {
	return &OutstandingQueries{s: s}
}

func (q *OutstandingQueries) load() map[string]string {
	m := make(map[string]string)
	q.s.Get(KeyOutstandingQueries, &m)
	return m
}

// All returns the currently outstanding request identifiers and their
// destinations.
func (q *OutstandingQueries) All() map[string]string {
	return q.load()
}

// IDs returns just the outstanding request identifiers.
func (q *OutstandingQueries) IDs() []string {
	m := q.load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// Add records a new outstanding query. A request identifier is unique
// within a session; adding an identifier that is already outstanding is an
// error rather than a silent overwrite.
func (q *OutstandingQueries) Add(requestID, destination string) error {
	m := q.load()
	if _, exists := m[requestID]; exists {
		return fmt.Errorf("outstanding query %q already exists", requestID)
	}
	m[requestID] = destination
	return q.s.Set(KeyOutstandingQueries, m)
}

// Delete consumes an outstanding query. Deleting an identifier that is no
// longer present is a no-op.
func (q *OutstandingQueries) Delete(requestID string) error {
	m := q.load()
	if _, exists := m[requestID]; !exists {
		return nil
	}
	delete(m, requestID)
	return q.s.Set(KeyOutstandingQueries, m)
}

// IdentityRecord is a cached view of what an IdP asserted about a subject.
type IdentityRecord struct {
	SubjectID    string              `json:"subject_id"`
	IdPEntityID  string              `json:"idp_entity_id,omitempty"`
	Attributes   map[string][]string `json:"attributes,omitempty"`
	NotOnOrAfter *time.Time          `json:"not_on_or_after,omitempty"`
}

// IdentityCache holds cached identity records keyed by subject identifier.
type IdentityCache struct {
	s *Session
}

// NewIdentityCache returns the identity-cache view of a session.
func NewIdentityCache(s *Session) *IdentityCache {
	return &IdentityCache{s: s}
}

func (c *IdentityCache) load() map[string]IdentityRecord {
	m := make(map[string]IdentityRecord)
	c.s.Get(KeyIdentityCache, &m)
	return m
}

// Get returns the cached record for subjectID. When checkDeadline is true,
// a record past its NotOnOrAfter deadline is treated as absent; diagnostic
// callers may pass false to read stale records.
func (c *IdentityCache) Get(subjectID string, checkDeadline bool) (*IdentityRecord, bool) {
	rec, ok := c.load()[subjectID]
	if !ok {
		return nil, false
	}
	if checkDeadline && rec.NotOnOrAfter != nil && !time.Now().Before(*rec.NotOnOrAfter) {
		return nil, false
	}
	return &rec, true
}

// Put stores or replaces the record for its subject.
func (c *IdentityCache) Put(rec IdentityRecord) error {
	m := c.load()
	m[rec.SubjectID] = rec
	return c.s.Set(KeyIdentityCache, m)
}

// Invalidate drops the cached record for subjectID, if any.
func (c *IdentityCache) Invalidate(subjectID string) error {
	m := c.load()
	if _, ok := m[subjectID]; !ok {
		return nil
	}
	delete(m, subjectID)
	return c.s.Set(KeyIdentityCache, m)
}

// StateCache holds the protocol engine's opaque state blob. This layer
// never interprets the blob; its only obligation is to persist whatever the
// engine hands back before the HTTP response is sent.
type StateCache struct {
	s *Session
}

// NewStateCache returns the protocol-state view of a session.
func NewStateCache(s *Session) *StateCache {
	return &StateCache{s: s}
}

// Blob returns the current state blob, nil if none has been stored.
func (c *StateCache) Blob() []byte {
	var blob []byte
	c.s.Get(KeyProtocolState, &blob)
	return blob
}

// Set stores the engine's updated state blob verbatim.
func (c *StateCache) Set(blob []byte) error {
	return c.s.Set(KeyProtocolState, blob)
}
