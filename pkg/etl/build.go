package etl

import (
	"context"
	"fmt"

	fr "github.com/wdm0006/songlake/pkg/frame"
	"github.com/wdm0006/songlake/pkg/transform/derive"
	"github.com/wdm0006/songlake/pkg/transform/filter"
)

// BuildSongs projects the song catalog to one row per distinct song.
func BuildSongs(songs *fr.Frame) (*fr.Frame, error) {
	out, err := songs.Select(songColumns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SongsTable.Name, err)
	}
	return out.Distinct(), nil
}

// BuildArtists projects the song catalog to one row per distinct artist
// tuple, with the artist_ prefix dropped from the descriptive columns.
func BuildArtists(songs *fr.Frame) (*fr.Frame, error) {
	out, err := songs.SelectAs(
		fr.Col("artist_id"),
		fr.Col("artist_name").As("name"),
		fr.Col("artist_location").As("location"),
		fr.Col("artist_latitude").As("latitude"),
		fr.Col("artist_longitude").As("longitude"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ArtistsTable.Name, err)
	}
	return out.Distinct(), nil
}

// NextSongEvents keeps the song-play events of a log frame and adds their
// start_time.
func NextSongEvents(ctx context.Context, logs *fr.Frame) (*fr.Frame, error) {
	return fr.NewPipeline().
		Add(filter.NewInSet("page", []string{NextSongPage})).
		Add(&derive.EpochMillis{From: "ts", To: "start_time"}).
		Run(ctx, logs)
}

// BuildUsers projects song-play events to distinct user/level tuples.
func BuildUsers(events *fr.Frame) (*fr.Frame, error) {
	out, err := events.Select(userColumns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", UsersTable.Name, err)
	}
	return out.Distinct(), nil
}

// BuildTime decomposes each distinct event timestamp into calendar fields.
func BuildTime(ctx context.Context, events *fr.Frame) (*fr.Frame, error) {
	out, err := events.Select(timeColumns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TimeTable.Name, err)
	}
	out, err = fr.NewPipeline().Add(&derive.DateParts{From: "start_time"}).Run(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TimeTable.Name, err)
	}
	return out.Distinct(), nil
}

// BuildSongplays joins song-play events to the song catalog on
// (artist, title, length) and to the time table on ts. Events without a
// match on both sides are left out.
func BuildSongplays(events, songs, times *fr.Frame) (*fr.Frame, error) {
	wrap := func(err error) error { return fmt.Errorf("%s: %w", SongplaysTable.Name, err) }
	l, err := events.Select(joinLogCols...)
	if err != nil {
		return nil, wrap(err)
	}
	s, err := songs.Select(joinSongCols...)
	if err != nil {
		return nil, wrap(err)
	}
	t, err := times.Select("ts", "year", "month")
	if err != nil {
		return nil, wrap(err)
	}
	j, err := l.InnerJoin(s, fr.Eq("artist", "artist_name"), fr.Eq("song", "title"), fr.Eq("length", "duration"))
	if err != nil {
		return nil, wrap(err)
	}
	j, err = j.InnerJoin(t, fr.Eq("ts", "ts"))
	if err != nil {
		return nil, wrap(err)
	}
	out, err := j.SelectAs(
		fr.Col("ts"),
		fr.Col("year"),
		fr.Col("month"),
		fr.Col("userId").As("user_id"),
		fr.Col("level"),
		fr.Col("song_id"),
		fr.Col("artist_id"),
		fr.Col("sessionId").As("session_id"),
		fr.Col("artist_location"),
		fr.Col("userAgent").As("user_agent"),
	)
	if err != nil {
		return nil, wrap(err)
	}
	return out.Distinct(), nil
}
