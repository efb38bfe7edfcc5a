// Package domain models FITS (Field Information Time Series) map and chart data.
//
// # Data Source
//
// Observation types, sites and observation series come from the FITS REST
// API (https://fits.geonet.org.nz). Sites are served as GeoJSON feature
// collections whose properties carry "siteID", "networkID", "name" and
// "height". Observation series are served either as JSON
// (/observation_results) or as CSV (/observation).
//
// # Coordinates
//
// Points use the orb convention: orb.Point{lon, lat}. Site longitudes from
// FITS are in (-180, 180]. New Zealand sites sit close to the antimeridian,
// so a map panned east of 180 shows the Chatham Islands at +183.5 while the
// feature data still says -176.5.
//
// # Dateline Correction
//
// A [DatelineCorrector] keeps map features on the side of the antimeridian
// the viewport is looking at. The viewport hemisphere sign is +1 for
// longitudes >= 0 and -1 otherwise; longitude 0 counts as +1.
//
//	point feature: outside the viewport bounds and opposite sign -> lon += sign*360
//	path feature:  every vertex with opposite sign              -> lon += sign*360
//
// Paths skip the containment test. A pass is skipped when the hemisphere sign
// is unchanged and the viewport bounds still intersect the previous bounds;
// callers force a pass after loading new features.
//
// # Observation Results
//
// /observation_results returns one row per timestamp with a [value, error]
// cell per requested site:
//
//	{"param":"e","sites":["HOLD","KAIK"],"results":[["2015-01-02",[1.2,0.1],[null]]]}
//
// Timestamps are epoch milliseconds, RFC 3339 strings or plain dates
// (multi-site results are daily averages). See [ParseResults].
//
// The CSV form has a header row "date-time, <typeID> (<unit>), error (<unit>)"
// followed by RFC 3339 timestamps, values and errors. See [ParseSeriesCSV].
package domain
