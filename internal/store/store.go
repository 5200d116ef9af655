// Package store selects a datastore backend from a single URI-like
// configuration string, so deployments choose where data lives without
// changing a line of calling code.
package store

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/braidstore/braid/internal/store/badgerstore"
	"github.com/braidstore/braid/internal/store/memory"
	"github.com/braidstore/braid/pkg/client"
	"github.com/braidstore/braid/pkg/graph"
)

// Recognized backend schemes.
const (
	SchemeMemory = "memory" // memory://              ephemeral in-process store
	SchemeBadger = "badger" // badger:///path/to/dir  persistent badger engine
	SchemeTCP    = "tcp"    // tcp://host:port        remote braid server
)

// Open builds the backend the configuration string selects. An unrecognized
// scheme is an error; daemons treat it as fatal at startup.
func Open[I graph.Id](rawURL string) (graph.Datastore[I], error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing datastore url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case SchemeMemory:
		return memory.New[I](), nil
	case SchemeBadger:
		// badger://relative/path and badger:///absolute/path both work.
		path := filepath.Join(u.Host, filepath.FromSlash(u.Path))
		if path == "" {
			return nil, fmt.Errorf("datastore url %q: missing path", rawURL)
		}
		return badgerstore.Open[I](path)
	case SchemeTCP:
		if u.Host == "" {
			return nil, fmt.Errorf("datastore url %q: missing host:port", rawURL)
		}
		return client.New[I](u.Host), nil
	}
	return nil, fmt.Errorf("unrecognized datastore scheme %q", u.Scheme)
}
