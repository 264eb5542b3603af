package runtime

import (
	"context"
	"testing"

	"github.com/harunnryd/copydesk/internal/config"
)

func TestNewRuntimeBuilder(t *testing.T) {
	if NewRuntimeBuilder() == nil {
		t.Error("NewRuntimeBuilder() returned nil")
	}
}

func TestBuilder_WithMethods(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	workspaceID := "test-workspace-" + t.Name()

	builder := NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(cfg).
		WithWorkspace(workspaceID)

	impl, ok := builder.(*DefaultRuntimeBuilder)
	if !ok {
		t.Fatal("Builder is not DefaultRuntimeBuilder")
	}
	if impl.ctx != ctx {
		t.Error("WithContext did not set context")
	}
	if impl.cfg != cfg {
		t.Error("WithConfig did not set config")
	}
	if impl.workspaceID != workspaceID {
		t.Error("WithWorkspace did not set workspaceID")
	}
}

func TestBuilder_Build_MissingConfig(t *testing.T) {
	if _, err := NewRuntimeBuilder().WithContext(context.Background()).Build(); err == nil {
		t.Error("Build() should return error when config is missing")
	}
}

func TestBuilder_Build_DefaultWorkspace(t *testing.T) {
	cfg := &config.Config{
		Store: config.StoreConfig{WorkspacePath: t.TempDir()},
	}

	components, err := NewRuntimeBuilder().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	defer components.Stop()

	if components.WorkspaceID != DefaultWorkspaceID {
		t.Errorf("WorkspaceID = %v, want %v", components.WorkspaceID, DefaultWorkspaceID)
	}
	if components.Sessions == nil || components.Services == nil || components.StoreWorker == nil {
		t.Fatal("runtime components should be populated")
	}
	if components.Services.Guide != nil {
		t.Error("guide should be disabled without a model provider")
	}
	if components.Services.Library == nil {
		t.Error("local library should be available with a store")
	}
}
