// Package cmd wires the lineage CLI: command definitions, flag handling,
// engine connection setup, and the mapping from planner errors to exit
// codes. The actual work happens in pkg/migrate and pkg/migrations; commands
// stay thin.
package cmd
