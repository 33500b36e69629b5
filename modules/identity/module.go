package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/handlers"
	"github.com/iota-uz/identity-sync/modules/identity/infrastructure/directory"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/configuration"
	"github.com/iota-uz/identity-sync/pkg/ingestion"
	"github.com/iota-uz/identity-sync/pkg/logging"
)

type ModuleOptions struct {
	Store     domain.EntityStore
	Directory domain.Directory
	Policy    services.ErrorPolicy
	Logger    *logrus.Entry
}

// Module wires the identity services and the per-topic handlers.
type Module struct {
	reconciliation *services.ReconciliationService
	sync           *services.SyncService
	policy         services.ErrorPolicy
	log            *logrus.Entry
}

func NewModule(opts ModuleOptions) *Module {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Module{
		reconciliation: services.NewReconciliationService(opts.Store, opts.Directory, log),
		sync:           services.NewSyncService(opts.Store, opts.Directory, log),
		policy:         opts.Policy,
		log:            log,
	}
}

func (m *Module) Reconciliation() *services.ReconciliationService { return m.reconciliation }

func (m *Module) Sync() *services.SyncService { return m.sync }

// Handlers maps each configured topic to its handler. Topics left empty are skipped.
func (m *Module) Handlers(k configuration.KafkaOptions) map[string]ingestion.Handler {
	out := map[string]ingestion.Handler{}
	add := func(topic string, h ingestion.Handler) {
		if topic != "" {
			out[topic] = h
		}
	}
	add(k.IdentityTopic, handlers.NewIdentityChange(m.reconciliation, m.policy, m.log.WithField("topic", k.IdentityTopic)))
	add(k.NoticeTopic, handlers.NewNotice(m.sync, m.policy, m.log.WithField("topic", k.NoticeTopic)))
	add(k.EmploymentTopic, handlers.NewEmployment(m.sync, m.policy, m.log.WithField("topic", k.EmploymentTopic)))
	add(k.NameTopic, handlers.NewNameChange(m.sync, m.policy, m.log.WithField("topic", k.NameTopic)))
	return out
}

// NewDirectory builds the directory client, fronted by a Redis cache when rdb is non-nil.
func NewDirectory(opts configuration.DirectoryOptions, rdb redis.Cmdable, log *logrus.Entry) (domain.Directory, error) {
	dirOpts := directory.Options{
		URL:               opts.URL,
		Authorization:     opts.Authorization,
		Query:             opts.Query,
		Timeout:           opts.Timeout,
		RequestsPerSecond: opts.RequestsPerSecond,
	}
	if strings.TrimSpace(opts.TokenURL) != "" {
		dirOpts.Authorization = ""
		dirOpts.HTTPClient = oauthClient(opts)
	}
	client, err := directory.NewGraphQLClient(dirOpts)
	if err != nil {
		return nil, err
	}
	if rdb == nil || opts.CacheTTL <= 0 {
		return client, nil
	}
	return directory.NewCachedClient(client, rdb, opts.CacheTTL, directory.WithCacheLogger(log)), nil
}

// oauthClient returns an HTTP client that fetches and refreshes a client
// credentials token before each directory call.
func oauthClient(opts configuration.DirectoryOptions) *http.Client {
	cfg := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		Scopes:       opts.Scopes,
	}
	base := &http.Client{Timeout: opts.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cfg.Client(ctx)
	client.Timeout = opts.Timeout
	return client
}
