// Package uidstore implements the durable UID cursor described in spec
// component A: per mailbox, the last-seen UID plus a bounded "recently seen"
// set used purely as a defensive de-dup layer against cursor/fetch races.
package uidstore

import (
	"regexp"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vendorflow/taskintake/internal/store/jsonfile"
)

const seenUidsCap = 1000

var sanitizeRe = regexp.MustCompile(`\W+`)

// sanitizeKey turns a mailbox name into a filesystem-safe key, collapsing
// every run of non-word characters into a single underscore.
func sanitizeKey(mailbox string) string {
	key := sanitizeRe.ReplaceAllString(mailbox, "_")
	if key == "" {
		key = "_"
	}
	return key
}

type cursorFile struct {
	LastSeenUid uint32 `json:"lastSeenUid"`
}

// Store persists mailbox cursors under dataDir, two files per mailbox, and
// keeps a bounded in-memory LRU of recently-seen UIDs per mailbox so Seen
// can be answered without round-tripping to disk on every message.
type Store struct {
	dataDir string
	caches  map[string]*lru.Cache[uint32, struct{}]
}

func New(dataDir string) *Store {
	return &Store{dataDir: dataDir, caches: make(map[string]*lru.Cache[uint32, struct{}])}
}

func (s *Store) cacheFor(mailbox string) *lru.Cache[uint32, struct{}] {
	key := sanitizeKey(mailbox)
	if c, ok := s.caches[key]; ok {
		return c
	}
	c, _ := lru.New[uint32, struct{}](seenUidsCap)
	s.caches[key] = c
	return c
}

func (s *Store) uidStorePath(mailbox string) string {
	return s.dataDir + "/uidStore_" + sanitizeKey(mailbox) + ".json"
}

func (s *Store) seenUidsPath(mailbox string) string {
	return s.dataDir + "/seenUids_" + sanitizeKey(mailbox) + ".json"
}

// Load returns the mailbox's cursor. Missing or malformed files yield
// (0, empty) without error, per §4.A — neither file's decode failure is
// fatal, since the listener re-dedups from IMAP state regardless.
func (s *Store) Load(mailbox string) (uint32, error) {
	var cf cursorFile
	_ = jsonfile.Load(s.uidStorePath(mailbox), &cf)

	var seen []uint32
	_ = jsonfile.Load(s.seenUidsPath(mailbox), &seen)

	cache := s.cacheFor(mailbox)
	for _, uid := range seen {
		cache.Add(uid, struct{}{})
	}
	return cf.LastSeenUid, nil
}

// Seen reports whether uid has already been processed for mailbox, per the
// in-memory LRU populated by Load/MarkSeen.
func (s *Store) Seen(mailbox string, uid uint32) bool {
	return s.cacheFor(mailbox).Contains(uid)
}

// MarkSeen records uid as processed without persisting; callers call Save
// once per batch to flush the cursor and capped seenUids set to disk.
func (s *Store) MarkSeen(mailbox string, uid uint32) {
	s.cacheFor(mailbox).Add(uid, struct{}{})
}

// Save persists lastSeenUid and the capped, numerically-largest 1,000
// entries of the mailbox's seenUids set. Persistence failure is returned to
// the caller to log; callers never depend on it for correctness (the
// listener re-dedups on next start via the IMAP UID search range).
func (s *Store) Save(mailbox string, lastSeenUid uint32) error {
	if err := jsonfile.Save(s.uidStorePath(mailbox), cursorFile{LastSeenUid: lastSeenUid}); err != nil {
		return err
	}

	cache := s.cacheFor(mailbox)
	keys := cache.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	if len(keys) > seenUidsCap {
		keys = keys[:seenUidsCap]
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return jsonfile.Save(s.seenUidsPath(mailbox), keys)
}
