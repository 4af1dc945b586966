// Package app wires configuration into a ready-to-use session.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"snda-portal/internal/api"
	"snda-portal/internal/config"
	"snda-portal/internal/domain"
	"snda-portal/internal/service"
	"snda-portal/internal/storage"
)

// Session bundles the collaborators every entry point needs
type Session struct {
	Config  *config.Config
	Client  *api.Client
	Store   domain.Store
	Cookies *storage.CookieMirror
	Manager *service.SessionManager

	closeStore func() error
}

// Bootstrap opens the configured store and builds the API client and
// session manager. It does not restore the session.
func Bootstrap(ctx context.Context, cfg *config.Config, opts ...service.SessionOption) (*Session, error) {
	store, closeStore, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.StoreDriver,
		Path:        cfg.StorePath,
		Secret:      cfg.StoreSecret,
		DatabaseURL: cfg.DatabaseURL,
		Namespace:   storeNamespace(cfg.APIBaseURL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	cookies, err := storage.NewCookieMirror(cfg.APIBaseURL, cfg.StorageKeys)
	if err != nil {
		return nil, errors.Join(err, closeStore())
	}

	client := api.NewClient(cfg.APIBaseURL,
		api.WithCookieJar(cookies.Jar()),
		api.WithEndpoints(cfg.Endpoints),
		api.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
	)

	all := append([]service.SessionOption{
		service.WithStorageKeys(cfg.StorageKeys),
		service.WithLocale(cfg.Locale),
		service.WithCookieTTL(cfg.AccessCookieTTL, cfg.RefreshCookieTTL),
	}, opts...)

	return &Session{
		Config:     cfg,
		Client:     client,
		Store:      store,
		Cookies:    cookies,
		Manager:    service.NewSessionManager(client, store, cookies, all...),
		closeStore: closeStore,
	}, nil
}

// Close releases the store
func (s *Session) Close() error {
	if s.closeStore == nil {
		return nil
	}
	return s.closeStore()
}

// storeNamespace keeps sessions for different backends apart in a shared store
func storeNamespace(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}
