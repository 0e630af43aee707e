package matching

import (
	"context"

	snapshotv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/snapshot/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/settlement"
)

//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=matching_mock

// Matcher runs matching passes for a market. Implemented by Engine; callers
// hold the interface so passes can be faked in tests.
type Matcher interface {
	// Trigger requests a pass for the market. Non-blocking: if a pass is
	// already running the request is coalesced into one follow-up pass.
	Trigger(market string)

	// RunPass executes a single matching pass synchronously.
	RunPass(ctx context.Context, market string) (PassReport, error)

	// Wait blocks until all in-flight passes have drained.
	Wait()
}

// Settler settles one proposed trade. Proposals are advisory; the settler
// re-validates everything against its own authoritative state.
type Settler interface {
	ExecuteTrade(ctx context.Context, orderID string, price, quantity float64) (settlement.Result, error)
}

// BookSource serves the most recent order book snapshot per market.
type BookSource interface {
	Latest(market string) (*snapshotv1.Snapshot, bool)
}
