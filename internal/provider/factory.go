package provider

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// Factory builds a Provider for a server row. The shared options carry timeout,
// logger and metrics; the base URL and credentials come from the row.
// Every provider built for the same server shares one rate limiter.
type Factory struct {
	opts client.Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFactory(opts client.Options) *Factory {
	return &Factory{opts: opts, limiters: make(map[string]*rate.Limiter)}
}

// limiterFor returns the limiter of a server, keyed by id and falling back to the api url.
func (f *Factory) limiterFor(server *models.Server) *rate.Limiter {
	if f.opts.RateLimit <= 0 {
		return nil
	}
	key := server.ID
	if key == "" {
		key = server.APIURL
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[key]
	if !ok {
		l = client.NewLimiter(f.opts.RateLimit, f.opts.Burst)
		f.limiters[key] = l
	}
	return l
}

// For validates the credentials the server type requires and returns its adapter.
func (f *Factory) For(server *models.Server) (Provider, error) {
	if server == nil {
		return nil, fmt.Errorf("%w: no server", ErrMissingCredentials)
	}
	if server.APIURL == "" {
		return nil, fmt.Errorf("%w: server %s has no api url", ErrMissingCredentials, server.ID)
	}

	opts := f.opts
	opts.BaseURL = server.APIURL
	opts.Limiter = f.limiterFor(server)

	switch server.Type {
	case models.ServerTypeDirectAdmin:
		username := deref(server.Username)
		// Token mode: a login key replaces the password
		secret := deref(server.APIKey)
		if secret == "" {
			secret = deref(server.Password)
		}
		if username == "" || secret == "" {
			return nil, fmt.Errorf("%w: directadmin server %s needs username and password or login key", ErrMissingCredentials, server.ID)
		}
		return NewDirectAdmin(client.NewDirectAdminClient(opts, username, secret, server.UsesLegacyAPI())), nil

	case models.ServerTypeVirtFusion:
		key := deref(server.APIKey)
		if key == "" {
			return nil, fmt.Errorf("%w: virtfusion server %s needs an api key", ErrMissingCredentials, server.ID)
		}
		return NewVirtFusion(client.NewVirtFusionClient(opts, key)), nil

	case models.ServerTypePterodactyl:
		key := deref(server.APIKey)
		if key == "" {
			return nil, fmt.Errorf("%w: pterodactyl server %s needs an api key", ErrMissingCredentials, server.ID)
		}
		return NewPterodactyl(client.NewPterodactylClient(opts, key)), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedServerType, server.Type)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
