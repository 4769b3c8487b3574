package harmony

import (
	"context"

	"github.com/natserract/harmony/pkg/calllog"
)

// HarmonyClient defines the interface for Epsilon Harmony API operations
type HarmonyClient interface {
	// Token returns a bearer token, refreshing it when stale or forced
	Token(ctx context.Context, forceRefresh bool) (string, *calllog.Record, error)

	// TestAPI forces a token call to validate the stored credentials
	TestAPI(ctx context.Context) (*calllog.Record, error)

	CreateRecord(ctx context.Context, profile Profile) (*Result, error)
	UpdateRecord(ctx context.Context, profile Profile) (*Result, error)
	DeleteRecord(ctx context.Context, customerKey string) (*Result, error)
	RetrieveRecord(ctx context.Context, customerKey string) (*Result, error)
}

var _ HarmonyClient = (*Harmony)(nil)
