package app

import "stayhold/internal/domain"

// ResolverHorizonDays bounds the next-available scan.
const ResolverHorizonDays = 90

// DateBookable is the single acceptance policy for one calendar day, shared
// by the resolver, the pre-lock re-check, and anything else that asks "could
// holderID book this day right now":
//
//	booked / maintenance / unavailable  -> no
//	available / partially_available     -> yes
//	blocked by holderID                 -> yes (re-selecting your own hold)
//	blocked by someone else             -> no
//	no record (host never opened it)    -> no
func DateBookable(snap domain.Snapshot, d domain.Date, holderID string) bool {
	rec, ok := snap.Lookup(d)
	if !ok {
		return false
	}
	switch rec.Status {
	case domain.StatusAvailable, domain.StatusPartiallyAvailable:
		return true
	case domain.StatusBlocked:
		return rec.HolderID == holderID
	default:
		return false
	}
}

// NextAvailableDate scans chronologically from start and returns the first
// bookable day for holderID, or false after the 90-day horizon. Pure and
// deterministic: identical inputs always yield identical output, so it can
// be re-run on every snapshot refresh.
func NextAvailableDate(snap domain.Snapshot, start domain.Date, holderID string) (domain.Date, bool) {
	for i := 0; i < ResolverHorizonDays; i++ {
		d := start.AddDays(i)
		if DateBookable(snap, d, holderID) {
			return d, true
		}
	}
	return domain.Date{}, false
}
