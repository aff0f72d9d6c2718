package main

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tailbeacon/pkg/api"
	"tailbeacon/pkg/auth"
	"tailbeacon/pkg/discovery"
	"tailbeacon/pkg/overlay"
	"tailbeacon/pkg/resolver"
	"tailbeacon/pkg/store"
)

func newStatusSource(a *app) (overlay.StatusSource, error) {
	switch a.cfg.Overlay {
	case "", "tailscale":
		return overlay.NewTailscaleSource(a.cfg.TailscalePath, a.log), nil
	case "wireguard":
		return overlay.NewWireGuardSource(a.cfg.WireGuardIf), nil
	default:
		return nil, fmt.Errorf("unsupported overlay: %s", a.cfg.Overlay)
	}
}

func newQueryRunner(a *app) (resolver.QueryRunner, error) {
	switch a.cfg.Resolver {
	case "", "dig":
		return resolver.NewDigRunner(a.cfg.DigPath, a.log), nil
	case "dns":
		return resolver.NewDNSRunner(a.cfg.DNSPort, a.log), nil
	default:
		return nil, fmt.Errorf("unsupported resolver: %s", a.cfg.Resolver)
	}
}

func newStore(a *app) (store.BeaconStore, error) {
	switch a.cfg.Store {
	case "", "memory":
		return store.NewMemoryStore(0), nil
	case "consul":
		return store.NewConsulStore(a.cfg.ConsulAddr, a.log), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", a.cfg.Store)
	}
}

var errInsecureSecret = errors.New("JWT_SECRET must be set: the built-in development secret lets anyone mint tokens")

// newSigner refuses the development secret; tokens signed with it are forgeable.
func newSigner(a *app) (*auth.Signer, error) {
	signer := auth.NewSigner(a.cfg.JWTSecret)
	if signer.Insecure() {
		return nil, errInsecureSecret
	}
	return signer, nil
}

// newAuthenticator leaves the API open when no admin hash is configured.
func newAuthenticator(a *app) (*api.Authenticator, error) {
	if a.cfg.AdminPasswordHash == "" {
		a.log.Warn("TAILBEACON_ADMIN_HASH not set; API is unauthenticated")
		return api.NewAuthenticator(auth.NewSigner(a.cfg.JWTSecret), ""), nil
	}
	signer, err := newSigner(a)
	if err != nil {
		return nil, err
	}
	return api.NewAuthenticator(signer, a.cfg.AdminPasswordHash), nil
}

func (a *app) discoverer() (*discovery.Discoverer, error) {
	if a.cfg.NormalizedDomain() == "" {
		return nil, errors.New("domain must not be empty")
	}
	if strings.Trim(a.cfg.ServiceType, ". ") == "" {
		return nil, errors.New("service type must not be empty")
	}
	src, err := newStatusSource(a)
	if err != nil {
		return nil, err
	}
	runner, err := newQueryRunner(a)
	if err != nil {
		return nil, err
	}
	a.log.Debug("discoverer configured",
		zap.String("domain", a.cfg.NormalizedDomain()),
		zap.String("service", a.cfg.ServiceType),
		zap.String("overlay", a.cfg.Overlay),
		zap.String("resolver", a.cfg.Resolver))
	return discovery.New(discovery.Options{
		ServiceType:    a.cfg.ServiceType,
		Domain:         a.cfg.NormalizedDomain(),
		MaxConcurrency: a.cfg.MaxConcurrency,
	},
		discovery.WithStatusSource(src),
		discovery.WithQueryRunner(runner),
		discovery.WithLogger(a.log),
	), nil
}
