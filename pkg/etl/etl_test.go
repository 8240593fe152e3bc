package etl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdm0006/songlake/pkg/config"
	fr "github.com/wdm0006/songlake/pkg/frame"
	"github.com/wdm0006/songlake/pkg/io/parquetio"
	"github.com/wdm0006/songlake/pkg/session"
	"github.com/wdm0006/songlake/pkg/transform/derive"
)

var songFiles = map[string]string{
	"song_data/A/A/A/TRAAAAW128F429D538.json": `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}`,
	"song_data/A/A/B/TRAABCL128F4286650.json": `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}`,
	"song_data/A/B/C/TRABCEI128F424C983.json": `{"num_songs": 1, "artist_id": "ARC43071187B990240", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "Wayne Watson", "song_id": "SOKEJEJ12A8C13E0D0", "title": "The Urgency (LP Version)", "duration": 245.21098, "year": 1986}`,
	"song_data/B/C/D/TRBCDEF128F4286651.json": `{"num_songs": 1, "artist_id": "ARC43071187B990240", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "Wayne Watson", "song_id": "SOQHXMF12AB0182363", "title": "Ocean", "duration": 200, "year": 1986}`,
}

const logFile = `{"artist":"Casual","auth":"Logged In","firstName":"Sylvie","gender":"F","itemInSession":0,"lastName":"Cruz","length":218.93179,"level":"free","location":"Washington-Arlington-Alexandria, DC-VA-MD-WV","method":"PUT","page":"NextSong","registration":1540266185796.0,"sessionId":345,"song":"I Didn't Mean To","status":200,"ts":1542069000000,"userAgent":"Mozilla/5.0","userId":"10"}
{"artist":null,"auth":"Logged In","firstName":"Sylvie","gender":"F","itemInSession":1,"lastName":"Cruz","length":null,"level":"free","location":"Washington-Arlington-Alexandria, DC-VA-MD-WV","method":"GET","page":"Home","registration":1540266185796.0,"sessionId":345,"song":null,"status":200,"ts":1542069001000,"userAgent":"Mozilla/5.0","userId":"10"}
{"artist":"Wayne Watson","auth":"Logged In","firstName":"Sylvie","gender":"F","itemInSession":2,"lastName":"Cruz","length":200,"level":"paid","location":"Washington-Arlington-Alexandria, DC-VA-MD-WV","method":"PUT","page":"NextSong","registration":1540266185796.0,"sessionId":345,"song":"Ocean","status":200,"ts":1542069060000,"userAgent":"Mozilla/5.0","userId":"10"}
{"artist":"Nobody","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":0,"lastName":"Smith","length":100.5,"level":"free","location":"San Jose","method":"PUT","page":"NextSong","registration":1541016707796.0,"sessionId":583,"song":"Unknown","status":200,"ts":1542069120000,"userAgent":"curl","userId":"26"}
{"artist":"Casual","auth":"Logged In","firstName":"Sylvie","gender":"F","itemInSession":0,"lastName":"Cruz","length":218.93179,"level":"free","location":"Washington-Arlington-Alexandria, DC-VA-MD-WV","method":"PUT","page":"NextSong","registration":1540266185796.0,"sessionId":345,"song":"I Didn't Mean To","status":200,"ts":1542069000000,"userAgent":"Mozilla/5.0","userId":"10"}
`

// nextSongEvents counts the NextSong lines in logFile.
const nextSongEvents = 4

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func newSession(t *testing.T, log io.Writer, mutate func(*config.Config)) *session.Session {
	t.Helper()
	in := t.TempDir()
	files := map[string]string{"log_data/2018/11/2018-11-13-events.json": logFile}
	for k, v := range songFiles {
		files[k] = v
	}
	writeTree(t, in, files)

	cfg := config.Default()
	cfg.Input.Base = in
	cfg.Output.Base = filepath.Join(t.TempDir(), "lake")
	cfg.Runtime.Workers = 2
	cfg.Runtime.TempDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := session.New(context.Background(), cfg, session.WithLogger(slog.New(slog.NewTextHandler(log, nil))))
	require.NoError(t, err)
	return s
}

func read(t *testing.T, s *session.Session, table Table) *fr.Frame {
	t.Helper()
	f, err := parquetio.ReadTable(context.Background(), s.Output, table.Name)
	require.NoError(t, err, table.Name)
	return f
}

func sortedStrings(t *testing.T, f *fr.Frame, name string) []string {
	t.Helper()
	c, ok := f.ColumnByName(name)
	require.True(t, ok, name)
	out := make([]string, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		v, _ := c.Value(i).(string)
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func TestRunWritesAllTables(t *testing.T) {
	var logs bytes.Buffer
	s := newSession(t, &logs, nil)
	ctx := context.Background()
	require.NoError(t, Run(ctx, s))

	songs := read(t, s, SongsTable)
	assert.Equal(t, 3, songs.Rows())
	assert.Equal(t, []string{"song_id", "title", "duration", "year", "artist_id"}, songs.Schema().Names())
	parts, err := s.Output.Glob(ctx, "songs_table/year=1986/artist_id=ARC43071187B990240/*.parquet")
	require.NoError(t, err)
	assert.Len(t, parts, 1)

	artists := read(t, s, ArtistsTable)
	assert.Equal(t, []string{"artist_id", "name", "location", "latitude", "longitude"}, artists.Schema().Names())
	assert.Equal(t, []string{"Casual", "Wayne Watson"}, sortedStrings(t, artists, "name"))

	users := read(t, s, UsersTable)
	assert.Equal(t, []string{"userId", "firstName", "lastName", "gender", "level"}, users.Schema().Names())
	assert.Equal(t, []string{"10", "10", "26"}, sortedStrings(t, users, "userId"), "user 10 appears once per level")
	assert.Equal(t, []string{"free", "free", "paid"}, sortedStrings(t, users, "level"))

	times := read(t, s, TimeTable)
	assert.Equal(t, 3, times.Rows())
	assert.Equal(t, []string{"ts", "start_time", "week", "weekday", "day", "hour", "year", "month"}, times.Schema().Names())
	for i := 0; i < times.Rows(); i++ {
		ts, _ := times.Value(i, "ts")
		if ts != int64(1542069000000) {
			continue
		}
		st, _ := times.Value(i, "start_time")
		assert.Equal(t, time.Date(2018, 11, 13, 0, 30, 0, 0, time.UTC), st)
		for col, want := range map[string]int64{"year": 2018, "month": 11, "week": 46, "weekday": 3, "day": 317, "hour": 0} {
			v, _ := times.Value(i, col)
			assert.Equal(t, want, v, col)
		}
	}

	plays := read(t, s, SongplaysTable)
	assert.Equal(t, []string{"ts", "user_id", "level", "song_id", "artist_id", "session_id", "artist_location", "user_agent", "year", "month"}, plays.Schema().Names())
	assert.Equal(t, []string{"SOMZWCG12A8C13C480", "SOQHXMF12AB0182363"}, sortedStrings(t, plays, "song_id"))
	assert.LessOrEqual(t, plays.Rows(), nextSongEvents)

	for _, table := range Tables() {
		_, err := os.Stat(filepath.Join(s.Output.String(), table.Name, parquetio.SuccessMarker))
		assert.NoError(t, err, table.Name)
	}
	assert.NotContains(t, logs.String(), "level=WARN")
}

func TestRunIsIdempotent(t *testing.T) {
	s := newSession(t, io.Discard, nil)
	ctx := context.Background()
	require.NoError(t, Run(ctx, s))
	first, err := Verify(ctx, s)
	require.NoError(t, err)
	require.NoError(t, Run(ctx, s))
	second, err := Verify(ctx, s)
	require.NoError(t, err)

	require.Len(t, second, len(Tables()))
	for i := range first {
		assert.Equal(t, first[i].Table, second[i].Table)
		assert.Equal(t, first[i].Rows, second[i].Rows, first[i].Table)
	}
}

func TestNarrowJoinGlobWarns(t *testing.T) {
	var logs bytes.Buffer
	s := newSession(t, &logs, func(c *config.Config) {
		c.Input.SongplaysSongGlob = "song_data/A/A/A/*.json"
	})
	require.NoError(t, Run(context.Background(), s))

	plays := read(t, s, SongplaysTable)
	assert.Equal(t, []string{"SOMZWCG12A8C13C480"}, sortedStrings(t, plays, "song_id"))
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "songplays_song_glob=song_data/A/A/A/*.json")
	assert.Equal(t, 3, read(t, s, SongsTable).Rows(), "dimension tables still use the full catalog")
}

func TestMalformedTimestampFailsRun(t *testing.T) {
	s := newSession(t, io.Discard, nil)
	bad := `{"artist":"Casual","page":"NextSong","song":"I Didn't Mean To","length":218.93179,"ts":"yesterday","userId":"10","level":"free","sessionId":1,"userAgent":"x","firstName":"S","lastName":"C","gender":"F"}` + "\n"
	writeTree(t, s.Config.Input.Base, map[string]string{"log_data/2018/11/2018-11-14-events.json": bad})

	err := Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, derive.ErrDerive), "got %v", err)
}

func TestMissingInputFails(t *testing.T) {
	s := newSession(t, io.Discard, func(c *config.Config) { c.Input.LogGlob = "events/*/*/*.json" })
	err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files")
}

func TestBuildSongplaysDropsUnmatched(t *testing.T) {
	ctx := context.Background()
	logs := frameOf(t, fr.Schema{Columns: []fr.ColumnSchema{
		{Name: "page", Type: fr.KindString}, {Name: "ts", Type: fr.KindInt}, {Name: "userId", Type: fr.KindString},
		{Name: "firstName", Type: fr.KindString}, {Name: "lastName", Type: fr.KindString}, {Name: "gender", Type: fr.KindString},
		{Name: "level", Type: fr.KindString}, {Name: "sessionId", Type: fr.KindInt}, {Name: "userAgent", Type: fr.KindString},
		{Name: "artist", Type: fr.KindString}, {Name: "song", Type: fr.KindString}, {Name: "length", Type: fr.KindFloat},
	}},
		[]any{"NextSong", int64(1000), "1", "A", "B", "F", "free", int64(7), "ua", "Art", "Song", 200.0},
		[]any{"NextSong", int64(2000), "1", "A", "B", "F", "free", int64(7), "ua", "Art", "Song", 200.5},
		[]any{"Logout", int64(3000), "1", "A", "B", "F", "free", int64(7), "ua", "Art", "Song", 200.0},
	)
	catalog := frameOf(t, fr.Schema{Columns: []fr.ColumnSchema{
		{Name: "song_id", Type: fr.KindString}, {Name: "artist_id", Type: fr.KindString}, {Name: "artist_location", Type: fr.KindString},
		{Name: "artist_name", Type: fr.KindString}, {Name: "title", Type: fr.KindString}, {Name: "duration", Type: fr.KindInt},
	}}, []any{"S1", "AR1", nil, "Art", "Song", int64(200)})

	events, err := NextSongEvents(ctx, logs)
	require.NoError(t, err)
	require.Equal(t, 2, events.Rows())
	times, err := BuildTime(ctx, events)
	require.NoError(t, err)
	plays, err := BuildSongplays(events, catalog, times)
	require.NoError(t, err)
	require.Equal(t, 1, plays.Rows(), "200 matches 200.0; 200.5 does not")
	v, _ := plays.Value(0, "ts")
	assert.Equal(t, int64(1000), v)
	v, _ = plays.Value(0, "year")
	assert.Equal(t, int64(1970), v)
}

func frameOf(t *testing.T, s fr.Schema, rows ...[]any) *fr.Frame {
	t.Helper()
	f, err := fr.NewFrame(s)
	require.NoError(t, err)
	for r, vals := range rows {
		f.AppendNullRow()
		for c, v := range vals {
			require.NoError(t, f.SetCell(r, s.Columns[c].Name, v))
		}
	}
	return f
}
