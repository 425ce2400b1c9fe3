// Package crawler defines the domain types, collaborator interfaces, and error
// taxonomy shared by the harvester's fetch, extract, ingest, and storage
// subsystems.
package crawler
