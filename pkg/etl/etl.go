// Package etl turns the song catalog and the event logs into the songs,
// artists, users, time and songplays tables.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	fr "github.com/wdm0006/songlake/pkg/frame"
	"github.com/wdm0006/songlake/pkg/io/jsonlio"
	"github.com/wdm0006/songlake/pkg/io/parquetio"
	"github.com/wdm0006/songlake/pkg/metrics"
	"github.com/wdm0006/songlake/pkg/profile"
	"github.com/wdm0006/songlake/pkg/session"
)

// Run processes the song catalog, then the event logs. The first failure
// aborts the run; tables already written stay as they are.
func Run(ctx context.Context, s *session.Session) error {
	if err := step(s, "ping", func() error { return s.Ping(ctx) }); err != nil {
		return err
	}
	var catalog *fr.Frame
	err := step(s, "process_song_data", func() error {
		var err error
		catalog, err = ProcessSongData(ctx, s)
		return err
	})
	if err != nil {
		return err
	}
	return step(s, "process_log_data", func() error { return ProcessLogData(ctx, s, catalog) })
}

func step(s *session.Session, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(s.Config.Metrics.Job, name, err, time.Since(start))
	if err != nil {
		s.Log.Error("step failed", "step", name, "err", err)
		return err
	}
	s.Log.Info("step done", "step", name, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func load(ctx context.Context, s *session.Session, pattern string) (*fr.Frame, error) {
	f, err := jsonlio.Load(ctx, s.Input, pattern, jsonlio.Options{Workers: s.Workers()})
	if err != nil {
		return nil, err
	}
	s.Log.Info("loaded", "pattern", pattern, "rows", f.Rows(), "columns", f.Cols())
	metrics.RecordRow(s.Config.Metrics.Job, pattern, "read", int64(f.Rows()))
	return f, nil
}

// ProcessSongData writes the songs and artists tables and returns the loaded
// catalog for the songplays join.
func ProcessSongData(ctx context.Context, s *session.Session) (*fr.Frame, error) {
	catalog, err := load(ctx, s, s.Config.Input.SongGlob)
	if err != nil {
		return nil, err
	}
	songs, err := BuildSongs(catalog)
	if err != nil {
		return nil, err
	}
	if err := write(ctx, s, SongsTable, songs); err != nil {
		return nil, err
	}
	artists, err := BuildArtists(catalog)
	if err != nil {
		return nil, err
	}
	if err := write(ctx, s, ArtistsTable, artists); err != nil {
		return nil, err
	}
	return catalog, nil
}

// ProcessLogData writes the users, time and songplays tables. catalog is
// reused for the join when the join glob equals the catalog glob; otherwise
// (or when catalog is nil) the join source is loaded on its own.
func ProcessLogData(ctx context.Context, s *session.Session, catalog *fr.Frame) error {
	logs, err := load(ctx, s, s.Config.Input.LogGlob)
	if err != nil {
		return err
	}
	events, err := NextSongEvents(ctx, logs)
	if err != nil {
		return err
	}
	s.Log.Info("song-play events", "rows", events.Rows(), "of", logs.Rows())

	users, err := BuildUsers(events)
	if err != nil {
		return err
	}
	if err := write(ctx, s, UsersTable, users); err != nil {
		return err
	}
	times, err := BuildTime(ctx, events)
	if err != nil {
		return err
	}
	if err := write(ctx, s, TimeTable, times); err != nil {
		return err
	}

	joinGlob := s.Config.SongplaysSongGlob()
	if joinGlob != s.Config.Input.SongGlob {
		s.Log.Warn("songplays joins a different song set than the catalog; plays of songs outside it are dropped",
			"songplays_song_glob", joinGlob, "song_glob", s.Config.Input.SongGlob)
		catalog = nil
	}
	if catalog == nil {
		if catalog, err = load(ctx, s, joinGlob); err != nil {
			return err
		}
	}
	plays, err := BuildSongplays(events, catalog, times)
	if err != nil {
		return err
	}
	return write(ctx, s, SongplaysTable, plays)
}

func write(ctx context.Context, s *session.Session, t Table, f *fr.Frame) error {
	start := time.Now()
	stats, err := parquetio.WriteTable(ctx, s.Output, t.Name, f, parquetio.WriteOptions{
		PartitionBy: t.PartitionBy,
		Compression: s.Config.Output.Compression,
		Workers:     s.Workers(),
		TempDir:     s.Config.Runtime.TempDir,
	})
	if err != nil {
		return err
	}
	job := s.Config.Metrics.Job
	metrics.RecordRow(job, t.Name, "written", int64(stats.Rows))
	metrics.RecordFiles(job, t.Name, int64(stats.Files))
	s.Log.Info("table written",
		"table", t.Name,
		"files", stats.Files,
		"partitions", stats.Partitions,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"profile", profile.Of(t.Name, f))
	return nil
}

// Verify reads every output table back and profiles it. A partitioned table
// with no rows holds only its success marker and reports zero rows.
func Verify(ctx context.Context, s *session.Session) ([]profile.Report, error) {
	var reports []profile.Report
	for _, t := range Tables() {
		f, err := parquetio.ReadTable(ctx, s.Output, t.Name)
		switch {
		case errors.Is(err, parquetio.ErrNoTable):
			ok, gerr := s.Output.Glob(ctx, t.Name+"/"+parquetio.SuccessMarker)
			if gerr != nil || len(ok) == 0 {
				return reports, fmt.Errorf("verify %s: %w", t.Name, err)
			}
			reports = append(reports, profile.Report{Table: t.Name})
			continue
		case err != nil:
			return reports, fmt.Errorf("verify %s: %w", t.Name, err)
		}
		r := profile.Of(t.Name, f)
		s.Log.Info("verified", "profile", r)
		reports = append(reports, r)
	}
	return reports, nil
}
