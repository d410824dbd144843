package coin

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Registry hands out the wallet-daemon client for a currency. Contract tokens
// resolve to their settlement network's daemon.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients map[string]Client) *Registry {
	normalized := make(map[string]Client, len(clients))
	for currency, client := range clients {
		normalized[strings.ToLower(strings.TrimSpace(currency))] = client
	}
	return &Registry{clients: normalized}
}

func (r *Registry) Client(currency string) (Client, error) {
	code := strings.ToLower(strings.TrimSpace(currency))
	if client, ok := r.clients[code]; ok {
		return client, nil
	}
	if info, ok := Lookup(code); ok && info.TokenNetwork != "" {
		if client, ok := r.clients[info.TokenNetwork]; ok {
			return client, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDaemon, code)
}

func (r *Registry) Currencies() []string {
	out := make([]string, 0, len(r.clients))
	for currency := range r.clients {
		out = append(out, currency)
	}
	return out
}

func buildClients(daemons map[string]string, user, password string, client *retryablehttp.Client, log *zap.Logger) map[string]Client {
	clients := make(map[string]Client, len(daemons))
	for currency, endpoint := range daemons {
		clients[currency] = NewDaemon(currency, endpoint, user, password, client, log)
	}
	return clients
}
