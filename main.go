// =============================================================================
// Sheet Sync - Main Entry Point
// =============================================================================
//
// USAGE:
//   sheetsync sync       - Sync every enabled sheet into PostgreSQL
//   sheetsync suggest    - Suggest column mappings for a sheet
//   sheetsync dedupe     - Review and remove content duplicates
//   sheetsync validate   - Validate configuration files
//   sheetsync migrate    - Apply system-table migrations
//   sheetsync status     - Show recent sync runs
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Sync pipeline, parsers, stores (not for external import)
//   - pkg/       : Shared report file utilities
//   - sheets/    : One YAML config per source sheet
//   - schemas/   : Destination table schemas (YAML or XLSX templates)
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/sheet-sync/cmd"
)

func main() {
	cmd.Execute()
}
