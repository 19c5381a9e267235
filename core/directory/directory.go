// Package directory keeps the in-memory mapping from display alias to derived credential.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/credential"
	"github.com/trezcool/rollbook/core/records"
)

// identity table fields
const (
	FieldAlias     = "Preferred Name"
	FieldName      = "Name"
	FieldStudentID = "StudentID"
)

var nowFunc = time.Now

type (
	Entry struct {
		Alias         string `json:"alias"`
		IdentityToken string `json:"identity_token"`
		Secret        string `json:"-"`
	}

	// Status describes the outcome of the latest refreshes.
	Status struct {
		LastAttempt         time.Time `json:"last_attempt"`
		LastSuccess         time.Time `json:"last_success"`
		LastError           string    `json:"last_error,omitempty"`
		Entries             int       `json:"entries"`
		Skipped             int       `json:"skipped"`
		ConsecutiveFailures int       `json:"consecutive_failures"`
	}

	// RefreshError is returned when a refresh could not complete. The previous snapshot stays live.
	RefreshError struct {
		Err error
	}

	Options struct {
		Table          string
		MasterPassword string
	}

	// Directory is safe for concurrent use. Lookups read an immutable snapshot that Refresh replaces
	// as a whole, so they never wait on a refresh.
	Directory struct {
		store   records.Store
		deriver *credential.Deriver
		log     core.Logger
		opts    Options

		snapshot atomic.Pointer[map[string]Entry]
		writer   sync.Mutex // serializes refreshes

		statusMutex sync.RWMutex
		status      Status
	}
)

func (err RefreshError) Error() string {
	return "refreshing directory: " + err.Err.Error()
}

func (err RefreshError) Unwrap() error {
	return err.Err
}

func IsRefreshError(err error) bool {
	_, ok := errors.Cause(err).(*RefreshError)
	return ok
}

func New(store records.Store, deriver *credential.Deriver, log core.Logger, opts Options) *Directory {
	dir := &Directory{store: store, deriver: deriver, log: log, opts: opts}
	empty := make(map[string]Entry)
	dir.snapshot.Store(&empty)
	return dir
}

// Refresh drains the identity table, derives every entry and publishes the new snapshot.
// On failure the previous snapshot is kept and a *RefreshError is returned.
func (dir *Directory) Refresh(ctx context.Context) error {
	dir.writer.Lock()
	defer dir.writer.Unlock()

	started := nowFunc()
	recs, err := records.Drain(ctx, dir.store, records.Query{Table: dir.opts.Table})
	if err != nil {
		dir.setStatus(func(s *Status) {
			s.LastAttempt = started
			s.LastError = err.Error()
			s.ConsecutiveFailures++
		})
		return &RefreshError{Err: err}
	}

	entries, skipped := dir.build(recs)
	dir.snapshot.Store(&entries)

	dir.setStatus(func(s *Status) {
		s.LastAttempt = started
		s.LastSuccess = started
		s.LastError = ""
		s.Entries = len(entries)
		s.Skipped = skipped
		s.ConsecutiveFailures = 0
	})
	dir.log.Debug("directory refreshed", map[string]interface{}{
		"entries": len(entries),
		"skipped": skipped,
		"took":    nowFunc().Sub(started).String(),
	})
	return nil
}

func (dir *Directory) build(recs []records.Record) (map[string]Entry, int) {
	entries := make(map[string]Entry, len(recs))
	secrets := make(map[string]string, len(recs)) // one derivation per identity token
	skipped := 0

	for _, rec := range recs {
		alias := rec.Fields.String(FieldAlias)
		if alias == "" {
			skipped++
			continue
		}
		token, ok := ExtractIdentity(rec.Fields.String(FieldName))
		if !ok {
			token = rec.Fields.String(FieldStudentID)
		}
		if token == "" {
			dir.log.Debug("directory: no identity token", map[string]interface{}{"record": rec.ID})
			skipped++
			continue
		}

		key := normalize(alias)
		if prev, dup := entries[key]; dup {
			dir.log.Warn("directory: duplicate alias", map[string]interface{}{
				"alias":  alias,
				"record": rec.ID,
				"kept":   prev.IdentityToken,
			})
			skipped++
			continue
		}

		secret, ok := secrets[token]
		if !ok {
			secret = dir.deriver.Derive(token)
			secrets[token] = secret
		}
		entries[key] = Entry{Alias: alias, IdentityToken: token, Secret: secret}
	}
	return entries, skipped
}

// Lookup finds the entry of alias, ignoring case and surrounding whitespace.
func (dir *Directory) Lookup(alias string) (Entry, bool) {
	entries := *dir.snapshot.Load()
	entry, ok := entries[normalize(alias)]
	return entry, ok
}

// Len is the number of entries of the live snapshot.
func (dir *Directory) Len() int {
	return len(*dir.snapshot.Load())
}

// Entries returns the live entries sorted by alias.
func (dir *Directory) Entries() []Entry {
	entries := *dir.snapshot.Load()
	list := make([]Entry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	sortEntries(list)
	return list
}

func (dir *Directory) Status() Status {
	dir.statusMutex.RLock()
	defer dir.statusMutex.RUnlock()
	return dir.status
}

func (dir *Directory) setStatus(update func(s *Status)) {
	dir.statusMutex.Lock()
	defer dir.statusMutex.Unlock()
	update(&dir.status)
}

func normalize(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

func sortEntries(list []Entry) {
	sort.Slice(list, func(i, j int) bool { return normalize(list[i].Alias) < normalize(list[j].Alias) })
}
