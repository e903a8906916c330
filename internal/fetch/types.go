// Package fetch wraps a bibliographic provider with request pacing and quota
// tracking.
package fetch

import (
	"context"
	"strconv"

	"github.com/matsen/citegraph/internal/reference"
)

// View selects what a provider request returns.
type View string

const (
	// ViewFull returns publication-level metadata.
	ViewFull View = "FULL"
	// ViewRef returns the publication's own reference list.
	ViewRef View = "REF"
)

// Refresh controls how old a provider-side cached response may be. Force
// bypasses the provider cache entirely.
type Refresh struct {
	Days  float64
	Force bool
}

// ForceRefresh always goes to the network.
var ForceRefresh = Refresh{Force: true}

// MaxAge accepts provider-cached responses younger than days.
func MaxAge(days float64) Refresh {
	return Refresh{Days: days}
}

func (r Refresh) String() string {
	if r.Force {
		return "force"
	}
	return strconv.FormatFloat(r.Days, 'f', -1, 64) + "d"
}

// Request is one provider call.
type Request struct {
	ID      string
	View    View
	Refresh Refresh
	Start   int // 1-based first reference for REF pages; 0 means from the start
}

// Response is what a provider returns for one Request.
type Response struct {
	// Paper holds the publication metadata. Always set for FULL; providers may
	// also fill it for REF.
	Paper *reference.Paper

	// References is the page of references returned for REF.
	References []reference.Reference

	// TotalReferences is the provider-declared size of the full reference list.
	TotalReferences int

	// RemainingQuota is set only when the response came from the network.
	RemainingQuota string
}

// Provider is the external citation database.
type Provider interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}
