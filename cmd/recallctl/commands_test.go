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
	"testing"

	"github.com/spf13/cobra"
)

// findCommand walks one level of the command tree by use-line prefix.
func findCommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, cmd := range parent.Commands() {
		if cmd.Name() == name {
			return cmd
		}
	}
	t.Fatalf("Command %q not registered under %q", name, parent.Name())
	return nil
}

func TestRootCommand_RegistersAllCommands(t *testing.T) {
	for _, name := range []string{
		"capabilities",
		"budget",
		"session",
		"sessions",
		"breakers",
		"cache",
		"epoch",
		"health",
	} {
		findCommand(t, rootCmd, name)
	}
}

func TestSessionCommand_Subcommands(t *testing.T) {
	sessionCmd := findCommand(t, rootCmd, "session")
	findCommand(t, sessionCmd, "get")
	findCommand(t, sessionCmd, "delete")
}

func TestEpochCommand_Subcommands(t *testing.T) {
	epochCmd := findCommand(t, rootCmd, "epoch")
	findCommand(t, epochCmd, "bump")
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"server", "token", "log-dir"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Persistent flag --%s not registered", name)
		}
	}
}

func TestCapabilitiesCommand_Flags(t *testing.T) {
	capCmd := findCommand(t, rootCmd, "capabilities")
	if capCmd.Flags().Lookup("level") == nil {
		t.Error("Flag --level not registered on capabilities")
	}
	if capCmd.Flags().Lookup("categories") == nil {
		t.Error("Flag --categories not registered on capabilities")
	}
}

func TestEpochBumpCommand_CollectionFlag(t *testing.T) {
	epochCmd := findCommand(t, rootCmd, "epoch")
	bumpCmd := findCommand(t, epochCmd, "bump")
	if bumpCmd.Flags().Lookup("collection") == nil {
		t.Error("Flag --collection not registered on epoch bump")
	}
}

func TestBudgetCommand_RequiresTaskType(t *testing.T) {
	budgetCmd := findCommand(t, rootCmd, "budget")
	if budgetCmd.Args == nil {
		t.Fatal("budget should declare positional args validation")
	}
	if err := budgetCmd.Args(budgetCmd, []string{}); err == nil {
		t.Error("budget with no args should fail validation")
	}
	if err := budgetCmd.Args(budgetCmd, []string{"debugging"}); err != nil {
		t.Errorf("budget with one arg should pass validation: %v", err)
	}
}
