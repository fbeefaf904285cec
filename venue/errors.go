package venue

import (
	"errors"
	"strings"
)

// Sentinel errors for the venue failure taxonomy. Transient errors make the
// router walk its fallback list; permanent errors are surfaced immediately.
var (
	ErrRateLimited        = errors.New("venue rate limited")
	ErrGeoBlocked         = errors.New("venue geo blocked")
	ErrMissingCredentials = errors.New("venue credentials missing")

	ErrBadSymbol         = errors.New("unknown or malformed symbol")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBelowMinNotional  = errors.New("order below minimum notional")
)

// Class buckets an error for routing purposes.
type Class int

const (
	// ClassPermanent errors are surfaced to the caller without retry.
	ClassPermanent Class = iota
	// ClassTransient errors advance the router to the next fallback venue.
	ClassTransient
)

// transientSignatures are textual markers seen in SDK and HTTP errors that
// do not wrap our sentinels. Matched case-insensitively.
var transientSignatures = []string{
	"rate limit",
	"too many requests",
	"-1003", // binance TOO_MANY_REQUESTS
	"status code: 429",
	"status code: 451",
	"restricted location",
	"service unavailable from a restricted",
	"api-key",
	"invalid api key",
	"unauthorized",
	"status code: 403",
}

// Classify buckets err as transient or permanent. Wrapped sentinels are
// checked first, then the error text is scanned for known signatures of
// rate-limit, geo-block and credential failures. Unknown errors are treated
// as permanent: retrying an order against another venue on an unclassified
// failure risks duplicate fills.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrGeoBlocked),
		errors.Is(err, ErrMissingCredentials):
		return ClassTransient
	case errors.Is(err, ErrBadSymbol),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrBelowMinNotional):
		return ClassPermanent
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return ClassTransient
		}
	}
	return ClassPermanent
}
