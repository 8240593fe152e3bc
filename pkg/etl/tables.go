package etl

// Table is one output dataset under the output base.
type Table struct {
	Name        string
	PartitionBy []string
}

var (
	SongsTable     = Table{Name: "songs_table", PartitionBy: []string{"year", "artist_id"}}
	ArtistsTable   = Table{Name: "artists_table"}
	UsersTable     = Table{Name: "user_table"}
	TimeTable      = Table{Name: "time_table", PartitionBy: []string{"year", "month"}}
	SongplaysTable = Table{Name: "songplays_table", PartitionBy: []string{"year", "month"}}
)

// Tables lists every output in write order.
func Tables() []Table {
	return []Table{SongsTable, ArtistsTable, UsersTable, TimeTable, SongplaysTable}
}

// NextSongPage is the page value of a song-play event.
const NextSongPage = "NextSong"

var (
	songColumns  = []string{"song_id", "title", "artist_id", "year", "duration"}
	userColumns  = []string{"userId", "firstName", "lastName", "gender", "level"}
	timeColumns  = []string{"ts", "start_time"}
	joinSongCols = []string{"song_id", "artist_id", "artist_location", "artist_name", "title", "duration"}
	joinLogCols  = []string{"ts", "userId", "level", "sessionId", "userAgent", "artist", "song", "length"}
)
