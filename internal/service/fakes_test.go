package service

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-docrequest/internal/model"
	"go-docrequest/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memTokenStore mirrors the semantics of the Postgres token store.
type memTokenStore struct {
	kind model.PrincipalKind

	mu         sync.Mutex
	tokens     map[string]model.Token
	renewCalls int
	renewErr   error
}

func newMemTokenStore(kind model.PrincipalKind) *memTokenStore {
	return &memTokenStore{kind: kind, tokens: map[string]model.Token{}}
}

func (s *memTokenStore) Kind() model.PrincipalKind { return s.kind }

func (s *memTokenStore) Issue(_ context.Context, token model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for value, t := range s.tokens {
		if t.OwnerID == token.OwnerID {
			delete(s.tokens, value)
		}
	}
	token.OwnerKind = s.kind
	s.tokens[token.Value] = token
	return nil
}

func (s *memTokenStore) Renew(_ context.Context, value string, now time.Time, ttl time.Duration) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renewCalls++
	if s.renewErr != nil {
		return model.Token{}, s.renewErr
	}

	token, ok := s.tokens[value]
	if !ok {
		return model.Token{}, model.ErrTokenNotFound
	}
	if token.ExpiresAt.Before(now) {
		delete(s.tokens, value)
		return model.Token{}, model.ErrTokenExpired
	}

	token.ExpiresAt = now.Add(ttl)
	s.tokens[value] = token
	return token, nil
}

func (s *memTokenStore) Revoke(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tokens[value]
	delete(s.tokens, value)
	return ok, nil
}

func (s *memTokenStore) countFor(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if t.OwnerID == ownerID {
			n++
		}
	}
	return n
}

func (s *memTokenStore) get(value string) (model.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	return t, ok
}

type memAccountStore struct {
	kind model.PrincipalKind

	mu       sync.Mutex
	accounts []model.Account
}

func newMemAccountStore(kind model.PrincipalKind, accounts ...model.Account) *memAccountStore {
	return &memAccountStore{kind: kind, accounts: accounts}
}

func (s *memAccountStore) Kind() model.PrincipalKind { return s.kind }

func (s *memAccountStore) FindByCredential(_ context.Context, credentialID string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.CredentialID, credentialID) {
			return a, nil
		}
	}
	return model.Account{}, model.ErrAccountNotFound
}

func (s *memAccountStore) FindByID(_ context.Context, id string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Account{}, model.ErrAccountNotFound
}

func (s *memAccountStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

func (s *memAccountStore) Create(_ context.Context, a model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
	return nil
}

func testAccount(t *testing.T, kind model.PrincipalKind, id, credential, password string, active bool) model.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return model.Account{
		ID:           id,
		Kind:         kind,
		CredentialID: credential,
		PasswordHash: string(hash),
		DisplayName:  "Name of " + id,
		IsActive:     active,
	}
}

type memTypeSource struct {
	mu    sync.Mutex
	types map[int64]model.RequestType
	calls int
}

func newMemTypeSource(types ...model.RequestType) *memTypeSource {
	s := &memTypeSource{types: map[int64]model.RequestType{}}
	for _, rt := range types {
		s.types[rt.ID] = rt
	}
	return s
}

func (s *memTypeSource) FindByID(_ context.Context, id int64) (model.RequestType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	rt, ok := s.types[id]
	if !ok {
		return model.RequestType{}, model.ErrRequestTypeNotFound
	}
	return rt, nil
}

// memRequestStore stages writes made inside InTx and applies them only when
// the callback and the simulated commit both succeed.
type memRequestStore struct {
	mu        sync.Mutex
	requests  map[string]model.Request
	documents map[string][]model.RequiredDocument
	nextDocID int64

	failDocumentAt int
	failCommit     bool
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{
		requests:  map[string]model.Request{},
		documents: map[string][]model.RequiredDocument{},
	}
}

type stagedWriter struct {
	store    *memRequestStore
	requests []model.Request
	docs     []model.RequiredDocument
}

func (w *stagedWriter) InsertRequest(_ context.Context, req model.Request) error {
	w.requests = append(w.requests, req)
	return nil
}

func (w *stagedWriter) InsertDocument(_ context.Context, doc *model.RequiredDocument) error {
	if w.store.failDocumentAt > 0 && len(w.docs)+1 == w.store.failDocumentAt {
		return errors.New("insert required document: connection reset")
	}
	w.store.nextDocID++
	doc.ID = w.store.nextDocID
	w.docs = append(w.docs, *doc)
	return nil
}

func (s *memRequestStore) InTx(_ context.Context, fn func(repository.RequestWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &stagedWriter{store: s}
	if err := fn(w); err != nil {
		return err
	}
	if s.failCommit {
		return errors.New("commit transaction: connection lost")
	}

	for _, r := range w.requests {
		s.requests[r.ID] = r
	}
	for _, d := range w.docs {
		s.documents[d.RequestID] = append(s.documents[d.RequestID], d)
	}
	return nil
}

func (s *memRequestStore) FindByID(_ context.Context, id string) (model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return model.Request{}, model.ErrRequestNotFound
	}
	return r, nil
}

func (s *memRequestStore) Documents(_ context.Context, requestID string) ([]model.RequiredDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RequiredDocument{}, s.documents[requestID]...), nil
}

func (s *memRequestStore) List(_ context.Context, query model.RequestListQuery) ([]model.Request, model.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Request, 0)
	for _, r := range s.requests {
		if query.OwnerID != "" && r.OwnerID != query.OwnerID {
			continue
		}
		if query.Status != "" && string(r.Status) != query.Status {
			continue
		}
		out = append(out, r)
	}
	page, limit := model.ClampPage(query.Page, query.Limit, 100)
	return out, model.NewMeta(page, limit, len(out)), nil
}

func (s *memRequestStore) UpdateStatus(_ context.Context, id string, status model.RequestStatus, now time.Time) (model.RequestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return "", model.ErrRequestNotFound
	}
	previous := r.Status
	r.Status = status
	r.UpdatedAt = now
	s.requests[id] = r
	return previous, nil
}

func (s *memRequestStore) Delete(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return nil, model.ErrRequestNotFound
	}
	names := make([]string, 0)
	for _, d := range s.documents[id] {
		names = append(names, d.StoredFileName)
	}
	delete(s.requests, id)
	delete(s.documents, id)
	return names, nil
}

func (s *memRequestStore) SetDocumentVerified(_ context.Context, requestID string, documentID int64, verified bool) (model.RequiredDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.documents[requestID]
	for i := range docs {
		if docs[i].ID == documentID {
			docs[i].Verified = verified
			return docs[i], nil
		}
	}
	return model.RequiredDocument{}, model.ErrDocumentNotFound
}

func (s *memRequestStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *memRequestStore) documentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, docs := range s.documents {
		n += len(docs)
	}
	return n
}

func (s *memRequestStore) put(r model.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

// memNoteStore holds one lock for the whole transaction, which serializes
// writers the way the per-pair advisory lock does.
type memNoteStore struct {
	mu       sync.Mutex
	owners   map[string]string
	statuses map[string]model.RequestStatus
	notes    []model.RequirementNote
	nextID   int64
}

func newMemNoteStore() *memNoteStore {
	return &memNoteStore{owners: map[string]string{}, statuses: map[string]model.RequestStatus{}}
}

type memNoteWriter struct {
	store    *memNoteStore
	inserted []model.RequirementNote
	statuses map[string]model.RequestStatus
}

func (w *memNoteWriter) LockPair(context.Context, string, string) error { return nil }

func (w *memNoteWriter) RequestOwner(_ context.Context, requestID string) (string, error) {
	owner, ok := w.store.owners[requestID]
	if !ok {
		return "", model.ErrRequestNotFound
	}
	return owner, nil
}

func (w *memNoteWriter) NoteExists(_ context.Context, requestID string, staffID string) (bool, error) {
	for _, n := range w.store.notes {
		if n.RequestID == requestID && n.StaffID == staffID {
			return true, nil
		}
	}
	return false, nil
}

func (w *memNoteWriter) InsertNote(_ context.Context, note *model.RequirementNote) error {
	w.store.nextID++
	note.ID = w.store.nextID
	w.inserted = append(w.inserted, *note)
	return nil
}

func (w *memNoteWriter) SetStatus(_ context.Context, requestID string, status model.RequestStatus, _ time.Time) error {
	w.statuses[requestID] = status
	return nil
}

func (s *memNoteStore) InTx(_ context.Context, fn func(repository.NoteWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &memNoteWriter{store: s, statuses: map[string]model.RequestStatus{}}
	if err := fn(w); err != nil {
		return err
	}
	s.notes = append(s.notes, w.inserted...)
	for id, st := range w.statuses {
		s.statuses[id] = st
	}
	return nil
}

func (s *memNoteStore) ListByRequest(_ context.Context, requestID string) ([]model.RequirementNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RequirementNote, 0)
	for i := len(s.notes) - 1; i >= 0; i-- {
		if s.notes[i].RequestID == requestID {
			out = append(out, s.notes[i])
		}
	}
	return out, nil
}

func (s *memNoteStore) FindByID(_ context.Context, id string) (model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[id]
	if !ok {
		return model.Request{}, model.ErrRequestNotFound
	}
	return model.Request{ID: id, OwnerID: owner, Status: s.statuses[id]}, nil
}

func textFile(field, name, content string) model.UploadedFile {
	return model.UploadedFile{
		FieldName: field,
		FileName:  name,
		Size:      int64(len(content)),
		Complete:  true,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}
