// Package domain models donations, recipient needs, and the values produced
// when the two are matched.
//
// # Records
//
// A [Donation] is a donor's offer of a quantity of one item in a fixed
// [Category]. A [Need] is an organization's open request for goods with an
// [Urgency]. Both carry free-text location and optional coordinates; the
// coordinates are filled in lazily by the geocoder, either during matching or
// by the backfill worker.
//
// # Geocoding
//
// Providers return a [PlaceMatch] in their own place-type taxonomy. The
// geocode service maps it to the three-tier [GeocodeQuality] scale using a
// per-provider table. Results with quality failed are never cached.
//
// # Scoring
//
// A [MatchScore] holds six sub-scores in [0,1] and their weighted total:
//
//	category        1 on case-insensitive equality, else 0
//	distance        1 - min(km, 100)/100
//	urgency         critical 1, high .75, medium .5, low .25, other .1
//	quantity        min/max ratio, +0.2 when the donation covers the need
//	item similarity exact 1, substring .8, shared words .5 + .3*overlap
//	recency         1 - days/30 since the need was created
//
// The total maps to a [MatchQuality]: >= .8 excellent, >= .6 good,
// >= .4 fair, else poor.
package domain
