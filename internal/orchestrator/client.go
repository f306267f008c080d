package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"docbulk/internal/model"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// DocumentClient performs the network operation for one batch. A returned
// error fails the whole batch.
type DocumentClient interface {
	CreateDocuments(ctx context.Context, docs []model.Document, database string) (*model.BatchResult, error)
	ReadDocuments(ctx context.Context, uris []string, opts model.ReadOptions) ([]model.Document, error)
	DeleteDocuments(ctx context.Context, uris []string, database string) error
}

// ClientFactory builds a client from an opaque key/value configuration
type ClientFactory func(config map[string]string) (DocumentClient, error)

// ClientRegistry holds named document clients for the lifetime of the caller.
// Jobs borrow clients from it; the registry owns their teardown.
type ClientRegistry struct {
	clients map[string]DocumentClient
	mu      sync.RWMutex
}

// NewClientRegistry creates an empty registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]DocumentClient),
	}
}

// Register adds or replaces a client under name
func (r *ClientRegistry) Register(name string, client DocumentClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[name] = client

	log.Info().
		Str("client", name).
		Msg("Registered document client")
}

// Get retrieves a client by name
func (r *ClientRegistry) Get(name string) (DocumentClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[name]
	return client, exists
}

// Open returns the client registered under name, building and registering it
// with factory when absent
func (r *ClientRegistry) Open(name string, config map[string]string, factory ClientFactory) (DocumentClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[name]; exists {
		return client, nil
	}

	if factory == nil {
		return nil, fmt.Errorf("%w: no factory for client %q", ErrNoClient, name)
	}

	client, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("open client %q: %w", name, err)
	}

	r.clients[name] = client
	log.Info().Str("client", name).Msg("Opened document client")
	return client, nil
}

// Names returns the registered client names, sorted
func (r *ClientRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Close tears down every client that implements io.Closer and empties the registry
func (r *ClientRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for name, client := range r.clients {
		if err := closeClient(client); err != nil {
			result = multierror.Append(result, fmt.Errorf("close client %q: %w", name, err))
		}
	}
	r.clients = make(map[string]DocumentClient)

	return result.ErrorOrNil()
}

func closeClient(client DocumentClient) error {
	if closer, ok := client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
