package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/inletmail/inlet/internal/queue"
)

// Account describes an IMAP mailbox to drain.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
	UseTLS   bool
}

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
	UIDExpunge(uids imap.UIDSet) expungeWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}
type expungeWaiter interface{ Close() error }

// Fetcher drains an IMAP mailbox into the local spool, as an alternative
// ingest path to the SMTP listener for setups where mail lands in a
// catch-all mailbox first.
type Fetcher struct {
	spool            *queue.Spool
	deleteAfterFetch bool
	dialTimeout      time.Duration
	logger           *slog.Logger
	newClient        func(Account) (imapClient, error)
}

// Option customizes fetcher behavior.
type Option func(*Fetcher)

// NewFetcher returns an IMAP fetcher writing into the given spool.
func NewFetcher(spool *queue.Spool, opts ...Option) *Fetcher {
	f := &Fetcher{
		spool:            spool,
		deleteAfterFetch: true,
		dialTimeout:      5 * time.Second,
		logger:           slog.Default(),
	}
	f.newClient = f.defaultClientFactory
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithDeleteAfterFetch toggles destructive mailbox behavior.
func WithDeleteAfterFetch(delete bool) Option {
	return func(f *Fetcher) {
		f.deleteAfterFetch = delete
	}
}

// WithLogger overrides the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithDialTimeout overrides the socket dial timeout.
func WithDialTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

func withClientFactory(factory func(Account) (imapClient, error)) Option {
	return func(f *Fetcher) {
		f.newClient = factory
	}
}

// Fetch drains the mailbox and spools every message found. It returns the
// number of messages spooled.
func (f *Fetcher) Fetch(ctx context.Context, account Account) (int, error) {
	if err := validateAccount(account); err != nil {
		return 0, err
	}

	client, err := f.newClient(account)
	if err != nil {
		return 0, fmt.Errorf("imap connect: %w", err)
	}
	defer f.safeClose(client)

	if err := client.Login(account.Username, account.Password).Wait(); err != nil {
		return 0, fmt.Errorf("imap auth: %w", err)
	}

	mailbox := account.Folder
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return 0, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return 0, nil
	}

	uidSet := imap.UIDSetNum(uids...)
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := client.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return 0, fmt.Errorf("imap fetch: %w", err)
	}

	spooled := 0
	for _, buf := range buffers {
		if err := ctx.Err(); err != nil {
			return spooled, err
		}
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		if body == nil {
			continue
		}
		id, err := f.spool.Put(append([]byte(nil), body...))
		if err != nil {
			return spooled, fmt.Errorf("spool uid %d: %w", buf.UID, err)
		}
		f.logger.Debug("spooled fetched message",
			slog.String("id", id),
			slog.Uint64("uid", uint64(buf.UID)),
			slog.String("folder", mailbox))
		spooled++
	}

	if f.deleteAfterFetch {
		store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagDeleted}}
		if err := client.Store(uidSet, store, nil).Close(); err != nil {
			return spooled, fmt.Errorf("imap store delete: %w", err)
		}
		if err := client.UIDExpunge(uidSet).Close(); err != nil {
			return spooled, fmt.Errorf("imap expunge: %w", err)
		}
	}

	if err := client.Logout().Wait(); err != nil {
		return spooled, fmt.Errorf("imap logout: %w", err)
	}

	return spooled, nil
}

func (f *Fetcher) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		f.logger.Warn("imap close error", slog.Any("error", err))
	}
}

func (f *Fetcher) defaultClientFactory(account Account) (imapClient, error) {
	port := account.Port
	if port == 0 {
		if account.UseTLS {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: f.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", account.Host, port)
	var client *imapclient.Client
	var err error
	if account.UseTLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &clientWrapper{Client: client}, nil
}

type clientWrapper struct{ *imapclient.Client }

func (w *clientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *clientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *clientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *clientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *clientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *clientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}
func (w *clientWrapper) UIDExpunge(uids imap.UIDSet) expungeWaiter {
	return w.Client.UIDExpunge(uids)
}

func validateAccount(account Account) error {
	if account.Host == "" {
		return errors.New("imap account missing host")
	}
	if account.Username == "" {
		return errors.New("imap account missing username")
	}
	if account.Password == "" {
		return errors.New("imap account missing password")
	}
	return nil
}
