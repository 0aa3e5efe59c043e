// Package domain models incident reports gathered from external sources.
//
// # Candidates and Incidents
//
// Source adapters produce [Candidate] values: unpersisted, normalized records
// awaiting categorization, deduplication and storage. A candidate that is
// successfully stored becomes an [Incident], which carries the store-assigned
// ID, status and timestamps. Ingestion only ever inserts; status transitions
// and edits belong to the CRUD layer.
//
// # Sources
//
//	news     scraped news sites and RSS outlets (URL always present)
//	weather  current conditions for one city (no URL)
//	social   posts from a recent-search API (URL built from the post ID)
//	user     submitted through the CRUD layer, never produced by ingestion
//
// # Natural Key
//
// The URL is the natural key. A candidate with a URL is stored at most once:
// the pipeline checks the store before inserting, and the store's UNIQUE
// constraint on url settles races between concurrent runs ([ErrConflict]).
// Candidates without a URL are never rejected as duplicates.
//
// # Categories
//
// [Categorize] maps free text to a label with a fixed keyword table. The
// first label in declaration order with any matching keyword wins:
//
//	accident, crime, fire, flood, storm, earthquake, traffic, health, weather
//
// Text matching nothing is labelled "general". The order is part of the
// contract; "Bank fire and accident" is an accident.
package domain
