// Copyright (c) VoiceHub Authors.
// Licensed under the MIT License.

// Package migration manages versioned schema migrations for the VoiceHub
// database using golang-migrate with embedded SQL files.
//
// Migration files live under migrations/<driver>/ and follow the
// golang-migrate naming convention:
//
//	000001_init_schema.up.sql
//	000001_init_schema.down.sql
//
// PostgreSQL and MySQL deployments apply these migrations at startup or
// via the "voicehub migrate" command. SQLite development databases may
// instead rely on the store package's AutoMigrate.
package migration
