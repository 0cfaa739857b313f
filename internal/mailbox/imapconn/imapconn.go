// Package imapconn is a thin wrapper over emersion/go-imap: dial,
// login, select, search-since-UID, and a UID-ordered fetch stream. It knows
// nothing about retry, state machines, or parsing — those live one layer up
// in internal/mailbox, which is the same separation the retrieval pack's
// IMAP sync tool draws between its client plumbing and its sync loop.
package imapconn

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Conn wraps one logged-in IMAP connection to a single mailbox.
type Conn struct {
	client  *client.Client
	mailbox string
}

// Dial connects (optionally over TLS) and returns an unauthenticated Conn.
func Dial(host string, port int, useTLS bool) (*Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	var c *client.Client
	var err error
	if useTLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: host})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imapconn: dial %s: %w", addr, err)
	}
	c.Timeout = 30 * time.Second
	return &Conn{client: c}, nil
}

// Login authenticates with plain credentials.
func (c *Conn) Login(user, pass string) error {
	if err := c.client.Login(user, pass); err != nil {
		return fmt.Errorf("imapconn: login: %w", err)
	}
	return nil
}

// Select opens mailbox read-write and remembers it for subsequent calls.
func (c *Conn) Select(mailbox string) (*imap.MailboxStatus, error) {
	status, err := c.client.Select(mailbox, false)
	if err != nil {
		return nil, fmt.Errorf("imapconn: select %s: %w", mailbox, err)
	}
	c.mailbox = mailbox
	return status, nil
}

// SearchUIDsAfter returns, ascending, every UID in the selected mailbox
// strictly greater than lastSeenUid.
func (c *Conn) SearchUIDsAfter(lastSeenUid uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(lastSeenUid+1, 0) // 0 means "no upper bound"

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imapconn: search: %w", err)
	}
	return uids, nil
}

// FetchResult is one streamed message: its UID, envelope, and body section.
type FetchResult struct {
	UID      uint32
	Envelope *imap.Envelope
	Body     imap.Literal
}

// FetchSection is the body section fetched for every message.
var FetchSection = &imap.BodySectionName{}

// Fetch streams the body+envelope of every uid in ascending order over the
// returned channel, and signals completion/error on the second channel —
// the same msgs-channel/doneCh-channel race the pack's IMAP sync tool uses
// to let a cancellation unblock a stalled fetch.
func (c *Conn) Fetch(uids []uint32) (<-chan FetchResult, <-chan error) {
	out := make(chan FetchResult, 64)
	done := make(chan error, 1)

	if len(uids) == 0 {
		close(out)
		done <- nil
		return out, done
	}

	seq := new(imap.SeqSet)
	for _, uid := range uids {
		seq.AddNum(uid)
	}
	items := []imap.FetchItem{FetchSection.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	msgs := make(chan *imap.Message, 64)
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- c.client.UidFetch(seq, items, msgs)
	}()

	go func() {
		defer close(out)
		for msg := range msgs {
			if msg == nil {
				continue
			}
			out <- FetchResult{UID: msg.Uid, Envelope: msg.Envelope, Body: msg.GetBody(FetchSection)}
		}
		done <- <-fetchErr
	}()

	return out, done
}

// Noop is the periodic no-op health check — a round trip that proves the
// connection is still alive without touching mailbox state.
func (c *Conn) Noop() error {
	return c.client.Noop()
}

// Logout closes the connection, best-effort.
func (c *Conn) Logout() error {
	return c.client.Logout()
}

// ForceClose unblocks any in-flight I/O immediately, used on cancellation.
func (c *Conn) ForceClose() error {
	return c.client.Terminate()
}

// Updates exposes the client's unsolicited-response channel so the listener
// can detect server-pushed "exists" notifications without polling.
func (c *Conn) Updates() chan client.Update {
	ch := make(chan client.Update, 16)
	c.client.Updates = ch
	return ch
}
