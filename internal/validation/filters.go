// Package validation provides filtering of raw pool records before enrichment.
package validation

import (
	"github.com/sirupsen/logrus"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// MinTVL is an exclusive lower bound on TVL in USD
	MinTVL float64

	// MinAPY is an exclusive lower bound on APY in percent
	MinAPY float64

	// RequireAPY rejects records whose APY was not reported at all
	RequireAPY bool

	// RequireIdentity rejects records missing chain, project or symbol
	RequireIdentity bool
}

// DefaultValidationOptions returns the rules applied during enrichment
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MinTVL:          0,
		MinAPY:          0,
		RequireAPY:      true,
		RequireIdentity: true,
	}
}

// FilterInvalid removes raw records that fail the default criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(pools []model.RawPool) []model.RawPool {
	return FilterInvalidWithOptions(pools, DefaultValidationOptions())
}

// FilterInvalidWithOptions removes raw records with custom validation options.
// Dropped records are only reported at debug level.
func FilterInvalidWithOptions(pools []model.RawPool, opts ValidationOptions) []model.RawPool {
	valid := make([]model.RawPool, 0, len(pools))
	for _, p := range pools {
		if reason := rejectReason(p, opts); reason != "" {
			logrus.WithFields(logrus.Fields{
				"pool":    p.Pool,
				"project": p.Project,
				"reason":  reason,
			}).Debug("Filtered invalid pool")
			continue
		}
		valid = append(valid, p)
	}

	logrus.WithFields(logrus.Fields{
		"total":    len(pools),
		"filtered": len(pools) - len(valid),
	}).Debug("Pool validation complete")

	return valid
}

// IsValid reports whether a single record meets the default criteria
func IsValid(p model.RawPool) bool {
	return rejectReason(p, DefaultValidationOptions()) == ""
}

func rejectReason(p model.RawPool, opts ValidationOptions) string {
	if p.TVLUSD.Value() <= opts.MinTVL {
		return "tvl"
	}

	if opts.RequireAPY && !p.APY.Valid {
		return "apy_missing"
	}

	if p.APY.Value() <= opts.MinAPY {
		return "apy"
	}

	if opts.RequireIdentity {
		if p.Symbol == "" || p.Chain == "" || p.Project == "" {
			return "identity"
		}
	}

	return ""
}
