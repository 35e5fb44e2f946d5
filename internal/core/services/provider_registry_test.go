package services

import (
	"errors"
	"testing"

	"confsync/internal/core/domain"
	apperrors "confsync/pkg/errors"
)

func TestProviderRegistryResolve(t *testing.T) {
	registry := NewProviderRegistry()
	provider := &fakeProvider{kind: "scenes"}
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name    string
		id      domain.SynchronizedObjectID
		wantErr bool
	}{
		{name: "known kind", id: domain.NewSynchronizedObjectID("scenes")},
		{name: "scoped id of known kind", id: domain.NewScopedSynchronizedObjectID("scenes", "room-1")},
		{name: "unknown kind", id: domain.NewSynchronizedObjectID("whiteboard"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := registry.Resolve(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var appErr *apperrors.AppError
				if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeConfiguration {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if resolved != provider {
				t.Fatal("resolved a different provider")
			}
		})
	}
}

func TestProviderRegistryRejectsDuplicateKind(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(&fakeProvider{kind: "rooms"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := registry.Register(&fakeProvider{kind: "rooms"}); err == nil {
		t.Fatal("expected duplicate kind registration to fail")
	}
}
