// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRecall/pkg/logging"
)

// --- Global Command Variables ---
var (
	serverURL      string // Coordinator base URL (--server)
	apiToken       string // Bearer token for admin routes (--token)
	logDir         string // Activity log directory (--log-dir)
	capLevel       string // Disclosure level for capabilities
	capCategories  string // Category filter for capabilities
	bumpCollection string // Target collection for epoch bump

	activityLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "recallctl",
		Short: "A cli to inspect and operate an AleutianRecall coordinator",
		Long: `Recallctl talks to a running recall coordinator over HTTP.
It covers capability discovery, token budgets, session inspection,
and the admin surface: circuit breakers, embedding cache statistics,
and cache epoch bumps after re-ingestion.`,
		PersistentPreRun:  initActivityLog,
		PersistentPostRun: closeActivityLog,
	}

	// --- Discovery ---
	capabilitiesCmd = &cobra.Command{
		Use:   "capabilities",
		Short: "Show the knowledge base capability manifest",
		Run:   runCapabilities, // Defined in cmd_discovery.go
	}
	budgetCmd = &cobra.Command{
		Use:   "budget [task_type]",
		Short: "Show recommended token budgets for a task type",
		Args:  cobra.ExactArgs(1),
		Run:   runBudget, // Defined in cmd_discovery.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Inspect or delete a single retrieval session",
	}
	sessionGetCmd = &cobra.Command{
		Use:   "get [session_id]",
		Short: "Show a session snapshot",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionGet, // Defined in cmd_session.go
	}
	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a session and its deduplication state",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionDelete, // Defined in cmd_session.go
	}

	// --- Admin ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions (admin)",
		Run:   runListSessions, // Defined in cmd_admin.go
	}
	breakersCmd = &cobra.Command{
		Use:   "breakers",
		Short: "Show circuit breaker states and counts (admin)",
		Run:   runBreakers, // Defined in cmd_admin.go
	}
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Show embedding cache statistics (admin)",
		Run:   runCacheStats, // Defined in cmd_admin.go
	}
	epochCmd = &cobra.Command{
		Use:   "epoch",
		Short: "Manage embedding cache epochs",
	}
	epochBumpCmd = &cobra.Command{
		Use:   "bump",
		Short: "Invalidate cached embeddings after re-ingestion (admin)",
		Run:   runEpochBump, // Defined in cmd_admin.go
	}

	// --- Health ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check coordinator health (exit 1 when degraded)",
		Run:   runHealth, // Defined in cmd_health.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Coordinator base URL (default: $RECALL_SERVER or http://localhost:12310)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "",
		"Bearer token for admin routes (default: $RECALL_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Activity log directory (default: $RECALL_LOG_DIR or ~/.aleutian/recall/logs)")

	rootCmd.AddCommand(capabilitiesCmd)
	capabilitiesCmd.Flags().StringVar(&capLevel, "level", "",
		"Disclosure level: overview, standard, detailed, or comprehensive")
	capabilitiesCmd.Flags().StringVar(&capCategories, "categories", "",
		"Comma-separated category filter (e.g. networking,storage)")

	rootCmd.AddCommand(budgetCmd)

	// session commands
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)

	// admin commands
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(breakersCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(epochCmd)
	epochCmd.AddCommand(epochBumpCmd)
	epochBumpCmd.Flags().StringVar(&bumpCollection, "collection", "",
		"Bump only this collection (default: all configured collections)")

	rootCmd.AddCommand(healthCmd)
}

// initActivityLog opens the file-only activity log before any command
// runs. Stdout stays reserved for command output.
func initActivityLog(cmd *cobra.Command, args []string) {
	dir := logDir
	if dir == "" {
		dir = getEnvString("RECALL_LOG_DIR", "~/.aleutian/recall/logs")
	}
	activityLogger = logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  dir,
		Service: "recallctl",
		Quiet:   true,
	})
	activityLogger.Info("command invoked",
		"command", cmd.Name(),
		"args", strings.Join(args, " "))
}

// closeActivityLog flushes and closes the activity log after a command
// completes. Fatal exits skip this; the log file is append-only and
// every write lands immediately, so nothing is lost.
func closeActivityLog(cmd *cobra.Command, args []string) {
	if activityLogger != nil {
		_ = activityLogger.Close()
	}
}

// activity returns the activity logger, falling back to a quiet default
// when a run function is exercised without the root command.
func activity() *logging.Logger {
	if activityLogger == nil {
		activityLogger = logging.New(logging.Config{Service: "recallctl", Quiet: true})
	}
	return activityLogger
}
