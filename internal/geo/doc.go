// Package geo looks up approximate location metadata for an exit address.
//
// Results come from a public JSONP endpoint and are only as accurate as that
// service; the country is usually right, the city often is not.
package geo
