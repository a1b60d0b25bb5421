// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spawnhq/spawn/config"
	"github.com/spawnhq/spawn/engine/pgpsql"
	"github.com/spawnhq/spawn/migration"
	"github.com/spawnhq/spawn/objstore"
	"github.com/spawnhq/spawn/pin"
	"github.com/spawnhq/spawn/spawnerr"
	"github.com/spawnhq/spawn/tracing"
	"github.com/spawnhq/spawn/util"
)

var migrationCommand = &cobra.Command{
	Use:   "migration",
	Short: "Create, pin, build, and apply migrations",
}

var migrationBuildParams = struct {
	pinned    bool
	noPin     bool
	variables string
}{}

var migrationApplyParams = struct {
	noPin     bool
	retry     bool
	yes       bool
	variables string
}{}

var migrationNewCommand = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new migration directory with a stub up.sql",
	PreRunE: func(_ *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("exactly one migration name required")
		}
		return nil
	},
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(migrationNew(args[0], os.Stdout, os.Stderr))
	},
}

var migrationPinCommand = &cobra.Command{
	Use:   "pin <migration>",
	Short: "Snapshot components/ into the content store and write lock.toml",
	PreRunE: func(_ *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("exactly one migration name required")
		}
		return nil
	},
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(migrationPin(args[0], os.Stdout, os.Stderr))
	},
}

var migrationBuildCommand = &cobra.Command{
	Use:   "build <migration>",
	Short: "Render a migration's SQL to stdout",
	PreRunE: func(c *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("exactly one migration name required")
		}
		if c.Flags().Changed("pinned") && c.Flags().Changed("no-pin") {
			return fmt.Errorf("--pinned and --no-pin are mutually exclusive")
		}
		return nil
	},
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(migrationBuild(args[0], os.Stdout, os.Stderr))
	},
}

var migrationApplyCommand = &cobra.Command{
	Use:   "apply <migration>",
	Short: "Apply a migration to the selected database",
	PreRunE: func(_ *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("exactly one migration name required")
		}
		return nil
	},
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(migrationApply(args[0], os.Stdin, os.Stdout, os.Stderr))
	},
}

var migrationAdoptCommand = &cobra.Command{
	Use:   "adopt <migration>",
	Short: "Record a migration as applied without executing it",
	PreRunE: func(_ *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("exactly one migration name required")
		}
		return nil
	},
	Run: func(_ *cobra.Command, args []string) {
		os.Exit(migrationAdopt(args[0], os.Stdout, os.Stderr))
	},
}

var migrationStatusParams = struct {
	format *util.EnumFlag
}{
	format: util.NewEnumFlag(statusFormatPretty, []string{statusFormatPretty, statusFormatJSON}),
}

const (
	statusFormatPretty = "pretty"
	statusFormatJSON   = "json"
)

var migrationStatusCommand = &cobra.Command{
	Use:   "status",
	Short: "Report each migration's apply state",
	Run: func(_ *cobra.Command, _ []string) {
		os.Exit(migrationStatus(os.Stdout, os.Stderr))
	},
}

// nameTimestampFormat is the 14-digit prefix every migration directory
// name starts with.
const nameTimestampFormat = "20060102150405"

var kebabInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// kebabName normalizes a human-entered migration name to kebab case.
func kebabName(name string) string {
	name = strings.ToLower(name)
	name = kebabInvalid.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

func migrationNew(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "migration new", err, stderr)
	}

	kebab := kebabName(name)
	if kebab == "" {
		return finish(p, "migration new", spawnerr.New(spawnerr.ConfigError, "migration name %q contains no usable characters", name), stderr)
	}

	dirName := time.Now().UTC().Format(nameTimestampFormat) + "-" + kebab
	stub := "-- " + dirName + "\n"

	err = p.root.Write(migration.DirPrefix+dirName+"/"+migration.UpFile, []byte(stub))
	if err == nil {
		// Ensure the sibling roots exist so the project is immediately
		// pinnable and testable.
		for _, keep := range []string{"components/.keep", "tests/.keep"} {
			if ok, _ := p.root.Exists(keep); !ok {
				_ = p.root.Write(keep, nil)
			}
		}
		fmt.Fprintf(stdout, "created %s%s\n", migration.DirPrefix, dirName)
	}
	return finish(p, "migration new", err, stderr)
}

func migrationPin(name string, stdout, stderr io.Writer) int {
	// The badger existence index makes re-pinning a large component tree
	// cheap; it is a pure cache and safe to delete at any time.
	logger := newLogger()
	cfg, err := config.Load(rootParams.configFile)
	var index objstore.ExistsIndex
	var closeIndex func()
	if err == nil {
		idx, idxErr := objstore.OpenBadgerIndex(indexDir(cfg), logger, nil)
		if idxErr != nil {
			logger.Debug("pin: existence index unavailable, continuing without: %v", idxErr)
		} else {
			index = idx
			closeIndex = func() { _ = idx.Close(context.Background()) }
		}
	}
	if closeIndex != nil {
		defer closeIndex()
	}

	p, err := loadProject(index)
	if err != nil {
		return finish(p, "migration pin", err, stderr)
	}

	digest, err := p.builder.Pin(name)
	if err == nil {
		fmt.Fprintf(stdout, "pinned %s\n", digest)
	}
	return finish(p, "migration pin", err, stderr)
}

func migrationBuild(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "migration build", err, stderr)
	}

	_, span := tracing.Start(RootCommand.Context(), "migration.build")
	defer span.End()

	noPin := migrationBuildParams.noPin || !migrationBuildParams.pinned
	opts, err := buildOptions(p, noPin, migrationBuildParams.variables)
	if err != nil {
		return finish(p, "migration build", err, stderr)
	}

	_, err = p.builder.Build(name, opts, stdout)
	return finish(p, "migration build", err, stderr)
}

// buildOptions assembles the migration build options shared by build,
// apply, and adopt: pinned unless --no-pin, plus the variables bundle.
func buildOptions(p *project, noPin bool, variablesFile string) (migration.Options, error) {
	opts := migration.Options{Pinned: !noPin}

	_, db, err := p.database()
	if err == nil {
		opts.Env = p.environment(db)
	} else {
		// Rendering without any configured database is fine; env is just
		// empty in the template context.
		opts.Env = p.environment(config.DatabaseConfig{})
	}

	if variablesFile != "" {
		vars, err := config.LoadVariables(variablesFile)
		if err != nil {
			return opts, err
		}
		opts.Variables = vars
	}
	return opts, nil
}

func migrationApply(name string, stdin io.Reader, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "migration apply", err, stderr)
	}

	ctx, span := tracing.Start(RootCommand.Context(), "migration.apply")
	defer span.End()

	resolved, err := migration.ResolveName(p.root, name)
	if err != nil {
		return finish(p, "migration apply", err, stderr)
	}

	opts, err := buildOptions(p, migrationApplyParams.noPin, migrationApplyParams.variables)
	if err != nil {
		return finish(p, "migration apply", err, stderr)
	}

	pinHash := ""
	if opts.Pinned {
		lock, lockErr := pin.ReadLockFile(migration.Dir(p.root, resolved))
		if lockErr != nil {
			if spawnerr.IsCode(lockErr, spawnerr.LockMissing) {
				return finish(p, "migration apply",
					spawnerr.New(spawnerr.LockMissing, "migration %s is not pinned; run `spawn migration pin %s` first or pass --no-pin", resolved, resolved), stderr)
			}
			return finish(p, "migration apply", lockErr, stderr)
		}
		pinHash = lock.Pin
	}

	eng, db, err := p.engine()
	if err != nil {
		return finish(p, "migration apply", err, stderr)
	}

	if !migrationApplyParams.yes {
		fmt.Fprintf(stdout, "Apply %s to database %q? [y/N] ", resolved, db.SpawnDatabase)
		line, _ := bufio.NewReader(stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(stdout, "aborted")
			return finish(p, "migration apply", nil, stderr)
		}
	}

	result, err := eng.Apply(ctx, pgpsql.ApplyRequest{
		Name:    resolved,
		PinHash: pinHash,
		Retry:   migrationApplyParams.retry,
		Render: func(w io.Writer) (objstore.Digest, error) {
			return p.builder.Build(resolved, opts, w)
		},
	})
	if err == nil {
		fmt.Fprintf(stdout, "applied %s in %s (checksum %s)\n", resolved, result.Duration.Round(time.Millisecond), result.Checksum)
	}
	return finish(p, "migration apply", err, stderr)
}

func migrationAdopt(name string, stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "migration adopt", err, stderr)
	}

	resolved, err := migration.ResolveName(p.root, name)
	if err != nil {
		return finish(p, "migration adopt", err, stderr)
	}

	// Adopt records the checksum the migration would have produced; use
	// the pin when present so the record matches a later pinned build.
	pinned := true
	pinHash := ""
	lock, lockErr := pin.ReadLockFile(migration.Dir(p.root, resolved))
	if lockErr != nil {
		pinned = false
	} else {
		pinHash = lock.Pin
	}

	opts, err := buildOptions(p, !pinned, migrationBuildParams.variables)
	if err != nil {
		return finish(p, "migration adopt", err, stderr)
	}

	checksum, err := p.builder.Build(resolved, opts, io.Discard)
	if err != nil {
		return finish(p, "migration adopt", err, stderr)
	}

	eng, _, err := p.engine()
	if err != nil {
		return finish(p, "migration adopt", err, stderr)
	}

	err = eng.Adopt(RootCommand.Context(), resolved, checksum, pinHash)
	if err == nil {
		fmt.Fprintf(stdout, "adopted %s (checksum %s)\n", resolved, checksum)
	}
	return finish(p, "migration adopt", err, stderr)
}

func migrationStatus(stdout, stderr io.Writer) int {
	p, err := loadProject(nil)
	if err != nil {
		return finish(p, "migration status", err, stderr)
	}

	names, err := migration.ListNames(p.root)
	if err != nil {
		return finish(p, "migration status", err, stderr)
	}

	eng, _, err := p.engine()
	if err != nil {
		return finish(p, "migration status", err, stderr)
	}

	rows, err := eng.Status(RootCommand.Context(), names)
	if err != nil {
		return finish(p, "migration status", err, stderr)
	}

	if migrationStatusParams.format.String() == statusFormatJSON {
		bs, jerr := json.MarshalIndent(rows, "", "  ")
		if jerr != nil {
			return finish(p, "migration status", spawnerr.Wrap(spawnerr.IOError, jerr, "encoding status"), stderr)
		}
		fmt.Fprintln(stdout, string(bs))
		return finish(p, "migration status", nil, stderr)
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAPPLIED AT\tACTIVITY\tSTATUS\tCHECKSUM\tPIN")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Name, row.AppliedAt, row.Activity, row.Status, shortDigest(row.Checksum), shortDigest(row.PinHash))
	}
	w.Flush()
	return finish(p, "migration status", nil, stderr)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// indexDir is where the pin existence cache lives, beside the blobs it
// accelerates.
func indexDir(cfg *config.Config) string {
	folder := cfg.SpawnFolder
	if !filepath.IsAbs(folder) {
		folder = filepath.Join(filepath.Dir(rootParams.configFile), folder)
	}
	return filepath.Join(folder, "pinned", "index")
}

func init() {
	migrationBuildCommand.Flags().BoolVar(&migrationBuildParams.pinned, "pinned", true, "build from the pinned component snapshot")
	migrationBuildCommand.Flags().BoolVar(&migrationBuildParams.noPin, "no-pin", false, "build from the live components/ directory")
	migrationBuildCommand.Flags().StringVar(&migrationBuildParams.variables, "variables", "", "variables file (json, toml, or yaml)")

	migrationApplyCommand.Flags().BoolVar(&migrationApplyParams.noPin, "no-pin", false, "apply from the live components/ directory")
	migrationApplyCommand.Flags().BoolVar(&migrationApplyParams.retry, "retry", false, "re-apply after a recorded failure")
	migrationApplyCommand.Flags().BoolVar(&migrationApplyParams.yes, "yes", false, "skip the confirmation prompt")
	migrationApplyCommand.Flags().StringVar(&migrationApplyParams.variables, "variables", "", "variables file (json, toml, or yaml)")

	migrationStatusCommand.Flags().VarP(migrationStatusParams.format, "format", "f", "set output format")

	migrationCommand.AddCommand(migrationNewCommand)
	migrationCommand.AddCommand(migrationPinCommand)
	migrationCommand.AddCommand(migrationBuildCommand)
	migrationCommand.AddCommand(migrationApplyCommand)
	migrationCommand.AddCommand(migrationAdoptCommand)
	migrationCommand.AddCommand(migrationStatusCommand)
	RootCommand.AddCommand(migrationCommand)
}
