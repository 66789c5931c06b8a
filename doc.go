// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

/*
Package img reads, edits and writes IMG archives of GTA III, Vice City and
San Andreas. Two container versions are supported:

  - V1: payloads in "name.img", directory in the "name.dir" sibling
    (32-byte records: offset u32, size u32, name[24]);
  - V2: one "name.img" starting with "VER2", an entry count and 32-byte
    records (offset u32, streaming u16, size u16, name[24]).

Offsets and sizes are counted in 2048-byte sectors. Entry names hold at most
23 ASCII bytes. Payloads are opaque: format detection only classifies the
first bytes (RenderWare DFF/TXD chunk headers, COL FourCC signatures).

Layout rules (summary):
  - V2 payloads never start before DirectorySectors(V2, count);
  - imports append at last.offset + last.size;
  - Save keeps valid offsets, Rebuild always packs sequentially;
  - every write goes to temp files that replace targets only on success.

# Reading

Open an archive (V1 archives can be opened by either path of the pair):

	a, err := img.Open("models/gta3.img")
	if err != nil {
	    return err
	}
	defer a.Close()
	for _, e := range a.Entries() {
	    fmt.Println(e) // "player.dff (Offset: 12, Size: 3 sectors)"
	}
	data, err := a.ReadPayload(a.FindByName("player.dff"))

For metadata-only scans use fast helpers:

	v, err := img.DetectVersion("gta3.img")
	entries, err := img.ListEntries("gta3.img")
	info, err := img.Stat("gta3.img")

Format detection is explicit and cached per entry:

	if _, err := a.AnalyzeAll(); err != nil {
	    return err
	}
	summary := a.VersionSummary()
	_ = summary.RenderWare

# Extracting

Export all entries (parallel workers, sanitized collision-free names):

	res, err := a.ExportAll(ctx, "out/", img.ExportOptions{
	    Types:      []string{"dff", "txd"},
	    MaxWorkers: 4,
	})
	_ = res.Failed

Or one directory per type:

	res, err := a.ExportByType(ctx, "out/", nil, img.ExportOptions{})

# Editing

Imports and deletes change the archive in memory; Save or Rebuild persists them:

	a, err := img.Create("custom.img", img.V2)
	if err != nil {
	    return err
	}
	if _, err := a.ImportFile("src/infernus.dff", img.ImportOptions{}); err != nil {
	    return err
	}
	if _, err := a.ImportFolder(ctx, "src/textures", img.FolderOptions{
	    Extensions: []string{"txd"},
	}); err != nil {
	    return err
	}
	a.DeleteByName("old.dff")
	if _, err := a.Rebuild(ctx, img.RebuildOptions{BackupKeep: 1}); err != nil {
	    return err
	}

Convert, merge and split are rebuilds into other targets:

	_, err = a.Convert(ctx, img.V1, "vc/custom.img")
	merged, err := img.Merge(ctx, []*img.Archive{a, b}, "all.img", img.MergeOptions{})
	parts, err := a.Split(ctx, "parts/", img.SplitOptions{ByType: true})

# Manager

Manager keeps several archives open by canonical path and implements Engine,
the service interface used by front ends:

	m := img.NewManager(img.ManagerOptions{Logger: logger})
	defer m.CloseAll()
	if _, err := m.Open("./gta3.img"); err != nil {
	    return err
	}
	if err := m.SelectByName("player.dff"); err != nil {
	    return err
	}
	res, err := m.ExtractSelected(ctx, "out/")
*/
package img
