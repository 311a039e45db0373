// Package metadata generates the random tag sets written into media files
package metadata

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"

	"metadata-injector/errors"
)

const (
	// MinYear and MaxYear bound the generated year, inclusive
	MinYear = 1990
	MaxYear = 2023
	// MinTrack and MaxTrack bound the generated track number, inclusive
	MinTrack = 1
	MaxTrack = 20
	// TrackTotal is the total written next to the track number by
	// containers that store a pair
	TrackTotal = 20
)

var titles = []string{
	"Sunset Dreams", "Midnight Journey", "Ocean Waves", "Mountain Echo", "Urban Lights",
	"Forest Whispers", "Desert Mirage", "Arctic Silence", "Tropical Breeze", "Cosmic Voyage",
	"Ancient Ruins", "Neon Nights", "Golden Hour", "Crystal Clear", "Electric Dreams",
	"Silent Storm", "Frozen Time", "Wildfire", "Stellar Wind", "Mystic Shadows",
}

var artists = []string{
	"Alex Rivers", "Sam Phoenix", "Jordan Blake", "Casey Storm", "Morgan Reed",
	"Riley Stone", "Quinn Frost", "Avery Lane", "Drew Sky", "Jamie Moon",
	"Taylor Swift", "Chris Martin", "Billie Eilish", "Ed Sheeran", "Ariana Grande",
	"The Weeknd", "Dua Lipa", "Bruno Mars", "Lady Gaga", "Justin Bieber",
}

// albums holds "Odyssey" twice, it is drawn twice as often as the others
var albums = []string{
	"Horizons", "Reflections", "Euphoria", "Chronicles", "Odyssey",
	"Serenity", "Velocity", "Momentum", "Harmony", "Paradox",
	"Infinity", "Legacy", "Nexus", "Apex", "Zenith",
	"Voyage", "Odyssey", "Genesis", "Revelation", "Ascension",
}

var genres = []string{
	"Electronic", "Rock", "Pop", "Hip-Hop", "Classical",
	"Jazz", "Ambient", "Soundtrack", "World", "Experimental",
	"R&B", "Country", "Folk", "Blues", "Reggae",
	"Metal", "Punk", "Indie", "Alternative", "Dance",
}

var comments = []string{
	"Enjoy this video!", "Hope you like this content", "Thanks for watching",
	"Created with passion", "Made for entertainment", "Share if you enjoyed",
	"Watch in HD for best experience", "Subscribe for more content",
	"Like and comment below", "Follow for updates", "Turn up the volume!",
	"Best viewed in fullscreen", "Thanks for your support", "Stay tuned",
	"More coming soon", "Hit the like button", "Don't forget to share",
}

// Titles returns a copy of the title pool
func Titles() []string { return slices.Clone(titles) }

// Artists returns a copy of the artist pool
func Artists() []string { return slices.Clone(artists) }

// Albums returns a copy of the album pool
func Albums() []string { return slices.Clone(albums) }

// Genres returns a copy of the genre pool
func Genres() []string { return slices.Clone(genres) }

// Comments returns a copy of the comment pool
func Comments() []string { return slices.Clone(comments) }

// TagSet is one set of values written into a file. Year and Track are
// decimal strings.
type TagSet struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Year    string `json:"year"`
	Comment string `json:"comment"`
	Genre   string `json:"genre"`
	Track   string `json:"track"`
}

// TrackNumber returns Track as an integer, or 0 if it isn't one
func (ts TagSet) TrackNumber() int {
	n, _ := strconv.Atoi(ts.Track)
	return n
}

// YearNumber returns Year as an integer, or 0 if it isn't one
func (ts TagSet) YearNumber() int {
	n, _ := strconv.Atoi(ts.Year)
	return n
}

// Validate checks that every field is drawn from its pool or range
func (ts TagSet) Validate() error {
	const op errors.Op = "metadata.Validate"

	check := func(name, value string, pool []string) error {
		if !slices.Contains(pool, value) {
			return errors.E(op, errors.InvalidArgument, errors.Info(name), "value "+strconv.Quote(value)+" is not in the pool")
		}
		return nil
	}
	if err := check("title", ts.Title, titles); err != nil {
		return err
	}
	if err := check("artist", ts.Artist, artists); err != nil {
		return err
	}
	if err := check("album", ts.Album, albums); err != nil {
		return err
	}
	if err := check("comment", ts.Comment, comments); err != nil {
		return err
	}
	if err := check("genre", ts.Genre, genres); err != nil {
		return err
	}
	if y, err := strconv.Atoi(ts.Year); err != nil || y < MinYear || y > MaxYear || strconv.Itoa(y) != ts.Year {
		return errors.E(op, errors.InvalidArgument, errors.Info("year"), "value "+strconv.Quote(ts.Year)+" is out of range")
	}
	if n, err := strconv.Atoi(ts.Track); err != nil || n < MinTrack || n > MaxTrack || strconv.Itoa(n) != ts.Track {
		return errors.E(op, errors.InvalidArgument, errors.Info("track"), "value "+strconv.Quote(ts.Track)+" is out of range")
	}
	return nil
}

// Generator draws TagSets from a random source. It is safe for concurrent
// use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator using src, a nil src uses a randomly seeded source
func New(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rnd: rand.New(src)}
}

// Generate returns a TagSet where every field is sampled independently and
// uniformly from its pool or range
func (g *Generator) Generate() TagSet {
	g.mu.Lock()
	defer g.mu.Unlock()

	return TagSet{
		Title:   g.pick(titles),
		Artist:  g.pick(artists),
		Album:   g.pick(albums),
		Year:    strconv.Itoa(MinYear + g.rnd.IntN(MaxYear-MinYear+1)),
		Comment: g.pick(comments),
		Genre:   g.pick(genres),
		Track:   strconv.Itoa(MinTrack + g.rnd.IntN(MaxTrack-MinTrack+1)),
	}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rnd.IntN(len(pool))]
}

var defaultGenerator = New(nil)

// Generate returns a TagSet from the process-wide generator
func Generate() TagSet {
	return defaultGenerator.Generate()
}
