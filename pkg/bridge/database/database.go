// Copyright 2024-2026 Aiku AI

// Package database implements the bridge's persistent room↔chat link store on
// top of go.mau.fi/util/dbutil. It supports SQLite and Postgres through the
// drivers blank-imported by the main package.
package database

import (
	"embed"

	"go.mau.fi/util/dbutil"
)

// UpgradeTable holds the schema migrations for the bridge database.
var UpgradeTable dbutil.UpgradeTable

//go:embed upgrades/*.sql
var upgrades embed.FS

func init() {
	UpgradeTable.RegisterFSPath(upgrades, "upgrades")
}

// Database wraps the raw connection pool with the bridge's query helpers.
type Database struct {
	*dbutil.Database
	Link *LinkQuery
}

// New wires the upgrade table and query helpers onto a connection pool.
func New(db *dbutil.Database) *Database {
	db.UpgradeTable = UpgradeTable
	return &Database{
		Database: db,
		Link:     &LinkQuery{QueryHelper: dbutil.MakeQueryHelper(db, newLink)},
	}
}
