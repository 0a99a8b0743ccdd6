package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/logging"
)

// Info describes a registered adapter.
type Info struct {
	ID          ID     `json:"id"`
	DisplayName string `json:"display_name"`
	Limits      Limits `json:"limits"`
}

// Registry resolves adapters by platform identifier. Registration happens at
// startup; lookups are read-only afterwards.
type Registry struct {
	adapters map[ID]Adapter
	logger   *zap.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters: make(map[ID]Adapter),
		logger:   logger,
	}
}

// Register adds a. Adapters for unsupported identifiers and duplicates are rejected.
func (r *Registry) Register(a Adapter) error {
	id := a.ID()
	if !id.Valid() {
		return fmt.Errorf("register adapter: %w: %q", ErrUnknownPlatform, id)
	}
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("register adapter: %s already registered", id)
	}
	r.adapters[id] = a
	r.logger.Debug("adapter registered", logging.Platform(string(id)))
	return nil
}

// Lookup returns the adapter for id. Unknown or unregistered identifiers
// yield ErrUnknownPlatform rather than a silent no-op.
func (r *Registry) Lookup(id string) (Adapter, error) {
	a, ok := r.adapters[ID(strings.ToLower(strings.TrimSpace(id)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, id)
	}
	return a, nil
}

// List returns metadata for every registered adapter, sorted by ID.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.adapters))
	for _, a := range r.adapters {
		infos = append(infos, Info{ID: a.ID(), DisplayName: a.DisplayName(), Limits: a.Limits()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Publish validates p for the account's platform and publishes it only when
// valid. An invalid payload yields a non-retryable validation_failed result
// together with the validation that rejected it.
func (r *Registry) Publish(ctx context.Context, account Account, p Payload) (Result, Validation, error) {
	a, err := r.Lookup(string(account.Platform))
	if err != nil {
		return Result{}, Validation{}, err
	}

	v := a.ValidatePayload(p)
	if !v.Valid {
		return Failed(&PublishError{
			Code:      CodeValidationFailed,
			Message:   strings.Join(v.Errors, "; "),
			Retryable: false,
		}), v, nil
	}

	res := a.Publish(ctx, account, p)
	if res.Success {
		r.logger.Info("published",
			logging.Platform(string(account.Platform)),
			logging.AccountID(account.ID),
			zap.String("post_id", res.PlatformPostID))
	} else if res.Error != nil {
		r.logger.Warn("publish failed",
			logging.Platform(string(account.Platform)),
			logging.AccountID(account.ID),
			zap.String("code", res.Error.Code),
			zap.Bool("retryable", res.Error.Retryable))
	}
	return res, v, nil
}
