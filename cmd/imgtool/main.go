// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

// Command imgtool inspects and edits GTA III, Vice City and San Andreas IMG archives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/woozymasta/img"
	"github.com/woozymasta/img/internal/config"
)

var version = "dev"

// errUsage marks argument errors that should print command usage.
var errUsage = errors.New("usage")

// app carries state shared by subcommands.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	manager *img.Manager
	cfg     config.Config
}

// command is one imgtool subcommand.
type command struct {
	run   func(ctx context.Context, a *app, args []string) error
	usage string
}

var commands = map[string]command{
	"info":    {run: infoCmd, usage: "info [--json] <archive>"},
	"list":    {run: listCmd, usage: "list [--type T,..] [--name S] [--analyze] <archive>"},
	"create":  {run: createCmd, usage: "create [--version V1|V2] <archive>"},
	"extract": {run: extractCmd, usage: "extract [--type T,..] [--entries N,..] [--by-type] [--workers N] <archive> <dir>"},
	"import":  {run: importCmd, usage: "import [--recursive] [--ext E,..] [--replace] [--rebuild] <archive> <file|dir>..."},
	"delete":  {run: deleteCmd, usage: "delete [--rebuild] <archive> <name>..."},
	"rebuild": {run: rebuildCmd, usage: "rebuild [--out path] <archive>"},
	"convert": {run: convertCmd, usage: "convert --version V1|V2 [--out path] <archive>"},
	"merge":   {run: mergeCmd, usage: "merge --out path [--version V1|V2] <archive>..."},
	"split":   {run: splitCmd, usage: "split (--by-type | --max-size bytes) [--out dir] <archive>"},
	"summary": {run: summaryCmd, usage: "summary [--json] <archive>"},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes imgtool with args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("imgtool", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "path to YAML configuration file")
	logLevel := global.String("log-level", "", "log level override (debug, info, warn, error)")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		usage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Logs.Level = *logLevel
	}

	logger, closer, err := config.NewLogger(cfg.Logs, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	a := &app{
		stdout: stdout,
		stderr: stderr,
		logger: logger,
		cfg:    cfg,
		manager: img.NewManager(img.ManagerOptions{
			Logger: logger,
			OpenOptions: img.OpenOptions{
				Strict:  cfg.Strict,
				Analyze: cfg.Analyze,
			},
			Export: img.ExportOptions{
				FileMode:   cfg.FileMode(),
				MaxWorkers: cfg.Workers,
			},
			BackupKeep: cfg.BackupKeep,
		}),
	}
	defer a.manager.CloseAll()

	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			_, _ = fmt.Fprintf(stderr, "usage: imgtool %s\n", cmd.usage)
			return 2
		}

		_, _ = fmt.Fprintf(stderr, "%s: %v\n", rest[0], err)
		return 1
	}

	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "imgtool %s [--config file] [--log-level level] <command> [options]\n\nCommands:\n", version)
	for _, name := range []string{"info", "list", "create", "extract", "import", "delete", "rebuild", "convert", "merge", "split", "summary"} {
		_, _ = fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

// newFlagSet returns a subcommand flag set that reports errors instead of exiting.
func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses fs and checks the positional argument count.
func parse(fs *flag.FlagSet, args []string, minArgs int, maxArgs int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}

	rest := fs.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		return nil, errUsage
	}

	return rest, nil
}

// splitList splits a comma-separated flag value.
func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

// parseVersionFlag returns the configured version when raw is empty.
func (a *app) parseVersionFlag(raw string) (img.Version, error) {
	if raw == "" {
		return a.cfg.Version()
	}

	return img.ParseVersion(raw)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func infoCmd(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("info")
	asJSON := fs.Bool("json", false, "print JSON")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}

	info, err := img.Stat(rest[0])
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(info)
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Path:\t%s\n", info.Path)
	if info.DirPath != "" {
		_, _ = fmt.Fprintf(tw, "Directory:\t%s\n", info.DirPath)
	}
	_, _ = fmt.Fprintf(tw, "Version:\t%s\n", info.Version.Description())
	_, _ = fmt.Fprintf(tw, "Entries:\t%d\n", info.Entries)
	_, _ = fmt.Fprintf(tw, "File size:\t%d\n", info.FileSize)
	_, _ = fmt.Fprintf(tw, "Data size:\t%d\n", info.DataSize)
	return tw.Flush()
}

func listCmd(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("list")
	types := fs.String("type", "", "comma-separated entry types")
	name := fs.String("name", "", "name substring")
	analyze := fs.Bool("analyze", false, "detect payload formats")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}

	archive, err := a.manager.Open(rest[0])
	if err != nil {
		return err
	}
	if *analyze {
		if _, err := archive.AnalyzeAll(); err != nil {
			return err
		}
	}

	entries, err := a.manager.Entries(img.EntryFilter{Name: *name, Types: splitList(*types)})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	header := "NAME\tTYPE\tOFFSET\tSECTORS"
	if *analyze {
		header += "\tFORMAT\tVERSION"
	}
	_, _ = fmt.Fprintln(tw, header)
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d", e.Name, e.Type(), e.OffsetSectors, e.SizeSectors)
		if info, ok := e.FormatInfo(); ok {
			_, _ = fmt.Fprintf(tw, "\t%s\t%s", info.Format, info.Version)
		}
		_, _ = fmt.Fprintln(tw)
	}

	return tw.Flush()
}

func createCmd(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("create")
	rawVersion := fs.String("version", "", "archive version (V1 or V2)")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}

	v, err := a.parseVersionFlag(*rawVersion)
	if err != nil {
		return err
	}

	archive, err := a.manager.Create(rest[0], v)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.stdout, "created %s (%s)\n", archive.Path(), v.Description())
	return nil
}

func extractCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("extract")
	types := fs.String("type", "", "comma-separated entry types")
	names := fs.String("entries", "", "comma-separated entry names")
	byType := fs.Bool("by-type", false, "write one subdirectory per type")
	workers := fs.Int("workers", 0, "parallel workers (default from config)")
	rest, err := parse(fs, args, 2, 2)
	if err != nil {
		return err
	}

	archive, err := a.manager.Open(rest[0])
	if err != nil {
		return err
	}

	opts := img.ExportOptions{
		Logger:     a.logger,
		FileMode:   a.cfg.FileMode(),
		MaxWorkers: a.cfg.Workers,
	}
	if *workers > 0 {
		opts.MaxWorkers = *workers
	}

	var res *img.ExportResult
	switch {
	case *names != "":
		if err := a.manager.SelectByName(splitList(*names)...); err != nil {
			return err
		}
		res, err = a.manager.ExtractSelected(ctx, rest[1])
	case *byType:
		res, err = archive.ExportByType(ctx, rest[1], splitList(*types), opts)
	default:
		opts.Types = splitList(*types)
		res, err = archive.ExportAll(ctx, rest[1], opts)
	}
	if err != nil {
		return err
	}

	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(a.stderr, "failed: %v\n", f)
	}
	_, _ = fmt.Fprintf(a.stdout, "extracted %d entries to %s\n", len(res.Exported), rest[1])
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d entries failed", len(res.Failed))
	}

	return nil
}

func importCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("import")
	recursive := fs.Bool("recursive", false, "import subdirectories")
	exts := fs.String("ext", "", "comma-separated extensions for directories")
	replace := fs.Bool("replace", false, "replace entries with the same name")
	rebuild := fs.Bool("rebuild", false, "repack instead of appending")
	rest, err := parse(fs, args, 2, -1)
	if err != nil {
		return err
	}

	archive, err := a.manager.Open(rest[0])
	if err != nil {
		return err
	}

	importOpts := img.ImportOptions{Replace: *replace}
	var imported, failed int
	var files []string
	for _, src := range rest[1:] {
		st, err := os.Stat(src)
		if err == nil && st.IsDir() {
			res, err := a.manager.ImportFolder(ctx, src, img.FolderOptions{
				Recursive:     *recursive,
				Extensions:    splitList(*exts),
				ImportOptions: importOpts,
			})
			if err != nil {
				return err
			}

			imported += len(res.Imported)
			failed += reportFailures(a.stderr, res.Failed)
			continue
		}

		files = append(files, src)
	}

	if len(files) > 0 {
		res, err := archive.ImportFiles(files, nil, importOpts)
		if err != nil {
			return err
		}

		imported += len(res.Imported)
		failed += reportFailures(a.stderr, res.Failed)
	}

	if err := a.persist(ctx, *rebuild); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.stdout, "imported %d files into %s\n", imported, archive.Path())
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}

	return nil
}

func deleteCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("delete")
	rebuild := fs.Bool("rebuild", false, "repack to reclaim space")
	rest, err := parse(fs, args, 2, -1)
	if err != nil {
		return err
	}

	if _, err := a.manager.Open(rest[0]); err != nil {
		return err
	}
	if err := a.manager.SelectByName(rest[1:]...); err != nil {
		return err
	}

	deleted, err := a.manager.DeleteSelected()
	if err != nil {
		return err
	}
	if err := a.persist(ctx, *rebuild); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.stdout, "deleted %d entries\n", deleted)
	return nil
}

func rebuildCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("rebuild")
	out := fs.String("out", "", "write to another path")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}

	if _, err := a.manager.Open(rest[0]); err != nil {
		return err
	}

	res, err := a.manager.RebuildWith(ctx, img.RebuildOptions{OutputPath: *out, BackupKeep: a.cfg.BackupKeep})
	if err != nil {
		return err
	}

	a.printRebuild(res)
	return nil
}

func convertCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("convert")
	rawVersion := fs.String("version", "", "target version (V1 or V2)")
	out := fs.String("out", "", "write to another path")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}
	if *rawVersion == "" {
		return errUsage
	}

	v, err := img.ParseVersion(*rawVersion)
	if err != nil {
		return err
	}
	if _, err := a.manager.Open(rest[0]); err != nil {
		return err
	}

	res, err := a.manager.RebuildWith(ctx, img.RebuildOptions{Version: v, OutputPath: *out, BackupKeep: a.cfg.BackupKeep})
	if err != nil {
		return err
	}

	a.printRebuild(res)
	return nil
}

func mergeCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("merge")
	out := fs.String("out", "", "merged archive path")
	rawVersion := fs.String("version", "", "merged archive version")
	rest, err := parse(fs, args, 1, -1)
	if err != nil {
		return err
	}
	if *out == "" {
		return errUsage
	}

	var v img.Version
	if *rawVersion != "" {
		if v, err = img.ParseVersion(*rawVersion); err != nil {
			return err
		}
	}

	sources := make([]*img.Archive, 0, len(rest))
	for _, path := range rest {
		archive, err := a.manager.Open(path)
		if err != nil {
			return err
		}

		sources = append(sources, archive)
	}

	res, err := img.Merge(ctx, sources, *out, img.MergeOptions{Logger: a.logger, Version: v, BackupKeep: a.cfg.BackupKeep})
	if err != nil {
		return err
	}

	for _, name := range res.Skipped {
		_, _ = fmt.Fprintf(a.stderr, "skipped duplicate %s\n", name)
	}
	a.printRebuild(res.Written)
	return nil
}

func splitCmd(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("split")
	byType := fs.Bool("by-type", false, "one archive per entry type")
	maxSize := fs.Int64("max-size", 0, "payload bytes per part")
	outDir := fs.String("out", "", "output directory (default: next to archive)")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}
	if !*byType && *maxSize <= 0 {
		return errUsage
	}

	archive, err := a.manager.Open(rest[0])
	if err != nil {
		return err
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(archive.Path())
	}

	results, err := archive.Split(ctx, dir, img.SplitOptions{ByType: *byType, MaxSize: *maxSize})
	if err != nil {
		return err
	}

	for _, res := range results {
		a.printRebuild(res)
	}
	return nil
}

func summaryCmd(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("summary")
	asJSON := fs.Bool("json", false, "print JSON")
	rest, err := parse(fs, args, 1, 1)
	if err != nil {
		return err
	}

	archive, err := a.manager.Open(rest[0])
	if err != nil {
		return err
	}
	if _, err := archive.AnalyzeAll(); err != nil {
		return err
	}

	summary := archive.VersionSummary()
	if *asJSON {
		return a.printJSON(summary)
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Entries:\t%d\n", summary.Total)
	_, _ = fmt.Fprintf(tw, "RenderWare:\t%d\n", summary.RenderWare)
	_, _ = fmt.Fprintf(tw, "Other:\t%d\n", summary.NonRenderWare)
	for _, format := range archive.Formats() {
		_, _ = fmt.Fprintf(tw, "Format %s:\t%d\n", format, summary.Formats[format])
	}
	for _, t := range archive.Types() {
		filtered, _ := archive.Filter(img.EntryFilter{Types: []string{t}})
		_, _ = fmt.Fprintf(tw, "Type %s:\t%d\n", t, len(filtered))
	}

	return tw.Flush()
}

// persist saves the active archive, repacking when rebuild is set.
func (a *app) persist(ctx context.Context, rebuild bool) error {
	var (
		res *img.RebuildResult
		err error
	)
	if rebuild {
		res, err = a.manager.Rebuild(ctx)
	} else {
		res, err = a.manager.Save(ctx)
	}
	if err != nil {
		return err
	}

	a.logger.Debug("archive written", slog.String("path", res.Path), slog.Bool("repacked", res.Repacked))
	return nil
}

func (a *app) printRebuild(res *img.RebuildResult) {
	_, _ = fmt.Fprintf(a.stdout, "wrote %s (%s, %d entries, %d data sectors)\n",
		res.Path, res.Version, res.Entries, res.DataSectors)
}

// reportFailures prints per-file failures and returns their count.
func reportFailures(w io.Writer, failed []img.ItemError) int {
	for _, f := range failed {
		_, _ = fmt.Fprintf(w, "failed: %v\n", f)
	}

	return len(failed)
}
