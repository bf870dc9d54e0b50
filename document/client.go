// Package document exposes typed handles over the cached record graph. Each
// handle reads through the store and writes through a txn builder.
package document

import (
	"context"
	"time"

	"github.com/jacentio/arbor/materialize"
	"github.com/jacentio/arbor/remote"
	"github.com/jacentio/arbor/resolve"
	"github.com/jacentio/arbor/store"
	"github.com/jacentio/arbor/txn"
)

// Config configures a Client.
type Config struct {
	// Token is the credential of the remote service. Required.
	Token string

	// Interval is the minimum delay between two remote fetches.
	// Default: remote.DefaultInterval. Negative disables the gate.
	Interval time.Duration

	// Registry is the slot table.
	// Default: store.DefaultRegistry()
	Registry *store.Registry

	txn.Config
}

// Client owns one store and the collaborators working on it.
type Client struct {
	store        *store.Store
	session      *txn.Session
	materializer *materialize.Materializer
}

// New creates a Client with an empty store.
func New(cfg Config, fetcher remote.Fetcher, executor remote.Executor) (*Client, error) {
	if cfg.Token == "" {
		return nil, store.ErrMissingToken
	}
	if cfg.Registry == nil {
		cfg.Registry = store.DefaultRegistry()
	}

	s := store.New()
	session := txn.NewSession(s,
		resolve.New(s, remote.Throttle(fetcher, cfg.Interval), cfg.Registry, cfg.Logger),
		executor, nil, cfg.Config)
	return &Client{
		store:   s,
		session: session,
		materializer: &materialize.Materializer{
			Store:    s,
			Registry: cfg.Registry,
			UserID:   session.Config.UserID,
			SpaceID:  session.Config.SpaceID,
			ShardID:  session.Config.ShardID,
			Now:      session.Config.Now,
			Logger:   session.Config.Logger,
		},
	}, nil
}

// Store returns the client's record cache.
func (c *Client) Store() *store.Store { return c.store }

// Session returns the client's txn session.
func (c *Client) Session() *txn.Session { return c.session }

// Flush sends the deferred operations as one batch.
func (c *Client) Flush(ctx context.Context) error {
	return c.session.Stack.Flush(ctx, c.session.Executor)
}

func (c *Client) handle(kind store.Kind, id string) *handle {
	return &handle{c: c, b: c.session.Builder(kind, id)}
}

// Block returns a handle on any block.
func (c *Client) Block(id string) *Block { return &Block{c.handle(store.KindBlock, id)} }

// Page returns a handle on a page block.
func (c *Client) Page(id string) *Page { return &Page{Block{c.handle(store.KindBlock, id)}} }

// CollectionBlock returns a handle on a collection_view or
// collection_view_page block.
func (c *Client) CollectionBlock(id string) *CollectionBlock {
	return &CollectionBlock{Block{c.handle(store.KindBlock, id)}}
}

// Space returns a handle on a space.
func (c *Client) Space(id string) *Space { return &Space{c.handle(store.KindSpace, id)} }

// Collection returns a handle on a collection.
func (c *Client) Collection(id string) *Collection {
	return &Collection{c.handle(store.KindCollection, id)}
}

// View returns a handle on a collection view.
func (c *Client) View(id string) *View { return &View{c.handle(store.KindCollectionView, id)} }

// UserRoot returns a handle on a user root.
func (c *Client) UserRoot(id string) *UserRoot { return &UserRoot{c.handle(store.KindUserRoot, id)} }

// SpaceView returns a handle on a space view.
func (c *Client) SpaceView(id string) *SpaceView {
	return &SpaceView{c.handle(store.KindSpaceView, id)}
}

// UserSettings returns a handle on a user's settings.
func (c *Client) UserSettings(id string) *UserSettings {
	return &UserSettings{c.handle(store.KindUserSettings, id)}
}
