// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spawnhq/spawn/config"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/tester"
)

var testCommand = &cobra.Command{
	Use:   "test",
	Short: "Create, build, and run SQL tests",
}

var testParams = struct {
	variables string
}{}

func oneTestName(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one test name required")
	}
	return nil
}

var testNewCommand = &cobra.Command{
	Use:     "new <name>",
	Short:   "Create a new test directory with a stub test.sql",
	PreRunE: func(_ *cobra.Command, args []string) error { return oneTestName(args) },
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(testNew(args[0], os.Stdout, os.Stderr))
	},
}

var testBuildCommand = &cobra.Command{
	Use:     "build <name>",
	Short:   "Render a test's SQL to stdout",
	PreRunE: func(_ *cobra.Command, args []string) error { return oneTestName(args) },
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(testBuild(args[0], os.Stdout, os.Stderr))
	},
}

var testRunCommand = &cobra.Command{
	Use:     "run <name>",
	Short:   "Run a test and diff its output against the expected baseline",
	PreRunE: func(_ *cobra.Command, args []string) error { return oneTestName(args) },
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(testRun(args[0], os.Stdout, os.Stderr))
	},
}

var testExpectCommand = &cobra.Command{
	Use:     "expect <name>",
	Short:   "Run a test and overwrite its expected baseline",
	PreRunE: func(_ *cobra.Command, args []string) error { return oneTestName(args) },
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(testExpect(args[0], os.Stdout, os.Stderr))
	},
}

var testCompareCommand = &cobra.Command{
	Use:   "compare",
	Short: "Run every test and report which differ from their baselines",
	Run: func(_ *cobra.Command, _ []string) {
		os.Exit(testCompare(os.Stdout, os.Stderr))
	},
}

// newTestRunner wires a tester.Runner for the selected database.
func newTestRunner(p *project) (*tester.Runner, error) {
	eng, db, err := p.engine()
	if err != nil {
		return nil, err
	}
	env := p.environment(db)

	var vars map[string]interface{}
	if testParams.variables != "" {
		vars, err = config.LoadVariables(testParams.variables)
		if err != nil {
			return nil, err
		}
	}
	return tester.New(p.root, eng, env, vars), nil
}

func testNew(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "test new", err, stderr)
	}

	path := tester.DirPrefix + name + "/" + tester.TemplateFile
	if ok, _ := p.root.Exists(path); ok {
		return finish(p, "test new", spawnerr.New(spawnerr.ConfigError, "test %q already exists", name), stderr)
	}

	err = p.root.Write(path, []byte("SELECT 1;\n"))
	if err == nil {
		fmt.Fprintf(stdout, "created %s\n", path)
	}
	return finish(p, "test new", err, stderr)
}

func testBuild(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "test build", err, stderr)
	}

	var vars map[string]interface{}
	if testParams.variables != "" {
		if vars, err = config.LoadVariables(testParams.variables); err != nil {
			return finish(p, "test build", err, stderr)
		}
	}

	_, db, dbErr := p.database()
	if dbErr != nil {
		db = config.DatabaseConfig{}
	}
	r := tester.New(p.root, nil, p.environment(db), vars)
	return finish(p, "test build", r.Build(name, stdout), stderr)
}

func testRun(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "test run", err, stderr)
	}
	r, err := newTestRunner(p)
	if err != nil {
		return finish(p, "test run", err, stderr)
	}
	err = r.Run(RootCommand.Context(), name)
	if err == nil {
		fmt.Fprintf(stdout, "test %s: ok\n", name)
	}
	return finish(p, "test run", err, stderr)
}

func testExpect(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "test expect", err, stderr)
	}
	r, err := newTestRunner(p)
	if err != nil {
		return finish(p, "test expect", err, stderr)
	}
	err = r.Expect(RootCommand.Context(), name)
	if err == nil {
		fmt.Fprintf(stdout, "test %s: baseline updated\n", name)
	}
	return finish(p, "test expect", err, stderr)
}

func testCompare(stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "test compare", err, stderr)
	}
	r, err := newTestRunner(p)
	if err != nil {
		return finish(p, "test compare", err, stderr)
	}

	results, err := r.Compare(RootCommand.Context())
	if err != nil {
		return finish(p, "test compare", err, stderr)
	}

	var failed error
	for _, res := range results {
		if res.Err == nil {
			fmt.Fprintf(stdout, "test %s: ok\n", res.Name)
			continue
		}
		fmt.Fprintf(stdout, "test %s: FAILED\n", res.Name)
		reportError(stderr, res.Err)
		if failed == nil {
			failed = spawnerr.New(spawnerr.TestDiff, "%d of %d tests failed", countFailed(results), len(results))
		}
	}
	if failed != nil {
		p.reporter.Record(RootCommand.Context(), "test compare")
		return exitCode(failed)
	}
	return finish(p, "test compare", nil, stderr)
}

func countFailed(results []tester.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func init() {
	for _, c := range []*cobra.Command{testBuildCommand, testRunCommand, testExpectCommand, testCompareCommand} {
		c.Flags().StringVar(&testParams.variables, "variables", "", "variables file (json, toml, or yaml)")
	}

	testCommand.AddCommand(testNewCommand)
	testCommand.AddCommand(testBuildCommand)
	testCommand.AddCommand(testRunCommand)
	testCommand.AddCommand(testExpectCommand)
	testCommand.AddCommand(testCompareCommand)
	RootCommand.AddCommand(testCommand)
}
