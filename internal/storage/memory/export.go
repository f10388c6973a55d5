package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	v1 "github.com/stickshift/trainer/internal/storage/memory/export/v1"
	"github.com/stickshift/trainer/pkg/core"
)

var nameReplacer = strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_")

// exportJSON writes the session to OutputDir, gzipped when CompressOutput is set.
// The caller holds b.mu.
func (b *Backend) exportJSON() error {
	export := v1.Build(&v1.SessionData{
		Session: *b.session,
		Summary: b.summary,
		Frames:  b.frames,
		Events:  b.events,
	})

	name := nameReplacer.Replace(sessionName(b.session))
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMeta.SessionName = name
	b.lastExportMeta.Driver = b.session.Driver
	b.lastExportMeta.Duration = durationSeconds(b.summary.Duration)
	b.lastExportMeta.Tag = b.session.Source
	return nil
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// ReadExport loads an export written by this backend; .gz files are
// decompressed.
func ReadExport(path string) (v1.Export, error) {
	var export v1.Export

	f, err := os.Open(path)
	if err != nil {
		return export, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}

// ListExports reads back the exports found in dir, newest first. Files that
// do not decode are skipped. limit <= 0 lists everything.
func ListExports(dir string, limit int) ([]core.SessionListing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []core.SessionListing
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")) {
			continue
		}
		export, err := ReadExport(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		out = append(out, listingOf(export))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Session.StartTime.After(out[j].Session.StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func listingOf(e v1.Export) core.SessionListing {
	start, _ := time.Parse(time.RFC3339Nano, e.StartTime)
	end, _ := time.Parse(time.RFC3339Nano, e.EndTime)
	return core.SessionListing{
		Session: core.Session{
			UUID:      e.SessionUUID,
			Driver:    e.Driver,
			Source:    e.Source,
			Script:    e.Script,
			TickRate:  e.TickRate,
			StartTime: start,
			EndTime:   end,
			Origin:    core.Position2D{X: e.Origin[0], Y: e.Origin[1]},
		},
		Summary: core.Summary{
			Frames:        e.Summary.Frames,
			Duration:      time.Duration(e.Summary.DurationSec * float64(time.Second)),
			Distance:      e.Summary.Distance,
			MaxSpeed:      e.Summary.MaxSpeed,
			Stalls:        e.Summary.Stalls,
			StepsReached:  e.Summary.StepsReached,
			TutorialSteps: e.Summary.TutorialSteps,
			Completed:     e.Summary.Completed,
		},
	}
}
