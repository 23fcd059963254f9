// Package main provides the entry point for the enrollment-sync CLI.
//
// @title Enrollment Sync API
// @version 1.0
// @description Reconciles enrollment CSV exports into the record store by email.
// @BasePath /api/v1
package main

import "enrollment-sync/cmd/enrollment-sync/cmd"

// Version information populated at build time.
var version = "dev"

func main() {
	cmd.Execute(version)
}
