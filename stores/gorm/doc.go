//go:build !wasm
// +build !wasm

// Package gorm stores cookieauth users in any database GORM supports
// (PostgreSQL, MySQL, SQLite, etc.).
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: accounts with their bcrypt password hash and status
//   - provider_links: OAuth identities linked to users
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	driver, err := gormstore.NewDriver(db)
//	handler, err := cookieauth.NewHandler(&cookieauth.Options{
//	    Server: cookieauth.ServerConfig{Driver: driver},
//	})
package gorm
