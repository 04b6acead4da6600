// Package dte selects the best available option expiration for a target
// days-to-expiration, ranking live expirations by closeness to target and
// then by liquidity.
package dte

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidRequest is returned when a discovery request fails validation.
// No upstream call is made for an invalid request.
var ErrInvalidRequest = errors.New("invalid discovery request")

// Reasons attached to a not-found DiscoveryResult.
const (
	ReasonUpstreamUnavailable = "upstream_unavailable"
	ReasonNoExpirations       = "no_expirations"
	ReasonOutsideTolerance    = "outside_tolerance"
)

// ExpirationCandidate is one live expiration date with its liquidity proxy.
type ExpirationCandidate struct {
	ExpirationDate   time.Time `json:"expiration_date"`
	DaysToExpiration int       `json:"days_to_expiration"`
	OptionCount      int       `json:"option_count"`
}

// DiscoveryRequest defines the acceptance window
// [TargetDTE-Tolerance, TargetDTE+Tolerance] for a ticker.
type DiscoveryRequest struct {
	Ticker    string `json:"ticker"`
	TargetDTE int    `json:"target_dte"`
	Tolerance int    `json:"tolerance"`
}

// Validate reports whether the request is well formed.
func (r DiscoveryRequest) Validate() error {
	if r.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidRequest)
	}
	if r.TargetDTE <= 0 {
		return fmt.Errorf("%w: target DTE must be positive, got %d", ErrInvalidRequest, r.TargetDTE)
	}
	if r.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative, got %d", ErrInvalidRequest, r.Tolerance)
	}
	return nil
}

// DiscoveryResult is the outcome of a discovery call. Found=false is a
// normal result variant, not an error: Reason tags why nothing was
// selected and TargetDTE always echoes the primary request so the caller
// can decide on an ultimate fallback.
type DiscoveryResult struct {
	Found              bool                  `json:"found"`
	Reason             string                `json:"reason,omitempty"`
	Ticker             string                `json:"ticker"`
	TargetDTE          int                   `json:"target_dte"`
	SelectedDTE        int                   `json:"selected_dte,omitempty"`
	ExpirationDate     time.Time             `json:"expiration_date,omitempty"`
	OptionCount        int                   `json:"option_count,omitempty"`
	DistanceFromTarget int                   `json:"distance_from_target,omitempty"`
	Alternatives       []ExpirationCandidate `json:"alternatives,omitempty"`
}

// ExpirationLister is the injected market-data capability. Implementations
// return expirations with DaysToExpiration computed relative to the current
// date at call time.
type ExpirationLister interface {
	ListAvailableExpirations(ctx context.Context, ticker string) ([]ExpirationCandidate, error)
}

// Discoverer finds optimal expirations using an injected lister. It holds
// no state between calls; concurrent use is safe.
type Discoverer struct {
	lister ExpirationLister
}

// NewDiscoverer creates a Discoverer backed by the given lister.
func NewDiscoverer(lister ExpirationLister) *Discoverer {
	return &Discoverer{lister: lister}
}

// FindOptimalDTE selects the best expiration within the request's tolerance
// window. Upstream failures and empty windows fold into a not-found result;
// the only returned error is ErrInvalidRequest.
func (d *Discoverer) FindOptimalDTE(ctx context.Context, req DiscoveryRequest) (*DiscoveryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log.Infof("finding optimal DTE for %s (target: %d±%d days)", req.Ticker, req.TargetDTE, req.Tolerance)

	candidates, err := d.lister.ListAvailableExpirations(ctx, req.Ticker)
	if err != nil {
		log.Warnf("expiration listing failed for %s: %v", req.Ticker, err)
		return notFound(req, ReasonUpstreamUnavailable), nil
	}

	if len(candidates) == 0 {
		log.Warnf("no available expirations found for %s", req.Ticker)
		return notFound(req, ReasonNoExpirations), nil
	}

	best, alternatives, ok := SelectBest(candidates, req.TargetDTE, req.Tolerance)
	if !ok {
		log.Warnf("no expirations in range %d-%d days for %s",
			req.TargetDTE-req.Tolerance, req.TargetDTE+req.Tolerance, req.Ticker)
		return notFound(req, ReasonOutsideTolerance), nil
	}

	log.Infof("optimal DTE found: %d days (%s), %d options, distance %d",
		best.DaysToExpiration, best.ExpirationDate.Format("2006-01-02"),
		best.OptionCount, absInt(best.DaysToExpiration-req.TargetDTE))

	return &DiscoveryResult{
		Found:              true,
		Ticker:             req.Ticker,
		TargetDTE:          req.TargetDTE,
		SelectedDTE:        best.DaysToExpiration,
		ExpirationDate:     best.ExpirationDate,
		OptionCount:        best.OptionCount,
		DistanceFromTarget: absInt(best.DaysToExpiration - req.TargetDTE),
		Alternatives:       alternatives,
	}, nil
}

// FindOptimalDTEWithFallback runs the primary request and, if it yields no
// candidate, retries once with the fallback request. The fallback is an
// explicit second request, never a widening of the first; a final not-found
// still carries the primary target.
func (d *Discoverer) FindOptimalDTEWithFallback(ctx context.Context, primary, fallback DiscoveryRequest) (*DiscoveryResult, error) {
	if err := fallback.Validate(); err != nil {
		return nil, err
	}

	result, err := d.FindOptimalDTE(ctx, primary)
	if err != nil {
		return nil, err
	}
	if result.Found {
		return result, nil
	}

	log.Infof("primary DTE discovery for %s came up empty, retrying with fallback target %d±%d",
		primary.Ticker, fallback.TargetDTE, fallback.Tolerance)

	fbResult, err := d.FindOptimalDTE(ctx, fallback)
	if err != nil {
		return nil, err
	}
	if fbResult.Found {
		return fbResult, nil
	}

	// Report the primary target so the caller can pick its own final answer.
	fbResult.TargetDTE = primary.TargetDTE
	fbResult.Ticker = primary.Ticker
	return fbResult, nil
}

// SelectBest filters candidates to the window [targetDTE-tolerance,
// targetDTE+tolerance] and ranks them by distance from target ascending,
// option count descending, then earliest expiration date. It returns the
// top candidate and the remaining in-window candidates in rank order.
// ok is false when no candidate lies inside the window.
func SelectBest(candidates []ExpirationCandidate, targetDTE, tolerance int) (best ExpirationCandidate, alternatives []ExpirationCandidate, ok bool) {
	minDTE := targetDTE - tolerance
	maxDTE := targetDTE + tolerance

	var inWindow []ExpirationCandidate
	for _, c := range candidates {
		if c.DaysToExpiration >= minDTE && c.DaysToExpiration <= maxDTE {
			inWindow = append(inWindow, c)
		}
	}

	if len(inWindow) == 0 {
		return ExpirationCandidate{}, nil, false
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		di := absInt(inWindow[i].DaysToExpiration - targetDTE)
		dj := absInt(inWindow[j].DaysToExpiration - targetDTE)
		if di != dj {
			return di < dj
		}
		if inWindow[i].OptionCount != inWindow[j].OptionCount {
			return inWindow[i].OptionCount > inWindow[j].OptionCount
		}
		return inWindow[i].ExpirationDate.Before(inWindow[j].ExpirationDate)
	})

	return inWindow[0], inWindow[1:], true
}

func notFound(req DiscoveryRequest, reason string) *DiscoveryResult {
	return &DiscoveryResult{
		Found:     false,
		Reason:    reason,
		Ticker:    req.Ticker,
		TargetDTE: req.TargetDTE,
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
