package audio

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"metadata-injector/errors"
	"metadata-injector/metadata"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	ts    metadata.TagSet
	calls int
}

func (g *countingGenerator) Generate() metadata.TagSet {
	g.calls++
	return g.ts
}

func TestExtensions(t *testing.T) {
	r := New()
	assert.Equal(t, []string{
		".asf", ".flac", ".m4a", ".mka", ".mkv", ".mp3", ".mp4", ".wav", ".wma", ".wmv",
	}, r.Extensions())

	assert.True(t, r.Supported(".MP4"))
	assert.True(t, r.Supported("wmv"))
	assert.False(t, r.Supported(".txt"))
	assert.False(t, r.Supported(""))

	f, ok := r.Lookup(".M4A")
	require.True(t, ok)
	assert.Equal(t, "MPEG-4", f.Name())
}

func TestUnsupportedFormat(t *testing.T) {
	data := []byte("some text")
	path := writeFixture(t, "notes.txt", data)
	counter := &countingGenerator{ts: fixtureTags}
	r := New(WithGenerator(counter))
	ctx := context.Background()

	err := r.Write(ctx, path, fixtureTags)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.UnsupportedFormat, err))
	e, ok := errors.Select(errors.UnsupportedFormat, err)
	require.True(t, ok)
	assert.Equal(t, errors.Format(".txt"), e.Format)

	_, err = r.Inject(ctx, path)
	assert.True(t, errors.Is(errors.UnsupportedFormat, err))
	assert.Zero(t, counter.calls)

	_, err = r.ReadTags(ctx, path)
	assert.True(t, errors.Is(errors.UnsupportedFormat, err))
	_, err = r.Inspect(ctx, path)
	assert.True(t, errors.Is(errors.UnsupportedFormat, err))

	assert.Equal(t, data, readFile(t, path))
}

func TestInject(t *testing.T) {
	path := wavFixture(t, "Voice.WAV", nil)
	counter := &countingGenerator{ts: fixtureTags}
	r := New(WithGenerator(counter))
	ctx := context.Background()

	ts, err := r.Inject(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, fixtureTags, ts)
	assert.Equal(t, 1, counter.calls)

	got, err := r.ReadTags(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ts, got.TagSet)
}

func TestInjectMissingFile(t *testing.T) {
	r := New()
	_, err := r.Inject(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.TagOpen, err), "got %v", err)
}

func TestWriteCanceled(t *testing.T) {
	path := writeFixture(t, "clip.mp4", mp4Fixture{udta: true}.build(t))
	before := readFile(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Write(ctx, path, fixtureTags)
	require.Error(t, err)
	assert.Equal(t, before, readFile(t, path))
}

type stubFormat struct {
	written []metadata.TagSet
}

func (s *stubFormat) Name() string { return "stub" }

func (s *stubFormat) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	s.written = append(s.written, ts)
	return nil
}

func (s *stubFormat) Read(ctx context.Context, path string) (Tags, error) {
	return Tags{TagSet: s.written[len(s.written)-1]}, nil
}

func TestRegister(t *testing.T) {
	stub := &stubFormat{}
	r := New(WithFormat("OGG", stub))
	assert.True(t, r.Supported(".ogg"))

	ts, err := r.Inject(context.Background(), "/nowhere/track.ogg")
	require.NoError(t, err)
	require.Len(t, stub.written, 1)
	assert.Equal(t, ts, stub.written[0])
	assert.NoError(t, ts.Validate())

	// stub has no details, Inspect still needs the file itself
	_, err = r.Inspect(context.Background(), "/nowhere/track.ogg")
	assert.True(t, errors.Is(errors.TagOpen, err))

	other := &stubFormat{}
	r.Register(".mp4", other)
	f, ok := r.Lookup(".mp4")
	require.True(t, ok)
	assert.Same(t, other, f)
}

func TestInspect(t *testing.T) {
	path := writeFixture(t, "song.flac", flacFixture(t))
	r := New()
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, path, fixtureTags))

	rep, err := r.Inspect(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "song.flac", rep.Path)
	assert.Equal(t, "FLAC", rep.Format)
	assert.Equal(t, int64(len(readFile(t, path))), rep.Size)
	assert.NotEmpty(t, rep.SizeHuman)
	assert.Equal(t, fixtureTags, rep.Tags.TagSet)
	assert.Equal(t, "44100", rep.Details["sample_rate"])
}

// TestRoundTrip writes a generated tag set with every built-in format that
// doesn't need external tools and reads it back
func TestRoundTrip(t *testing.T) {
	fixtures := map[string]func(t *testing.T) string{
		"mp4": func(t *testing.T) string { return writeFixture(t, "clip.mp4", mp4Fixture{udta: true}.build(t)) },
		"m4a": func(t *testing.T) string { return writeFixture(t, "clip.m4a", mp4Fixture{moovLast: true}.build(t)) },
		"wmv": func(t *testing.T) string { return writeFixture(t, "clip.wmv", asfFixture(t)) },
		"mp3": func(t *testing.T) string { return writeFixture(t, "song.mp3", mp3Fixture(3)) },
		"flac": func(t *testing.T) string {
			return writeFixture(t, "song.flac", flacFixture(t, "ENCODER=fixture"))
		},
		"wav": func(t *testing.T) string { return wavFixture(t, "voice.wav", nil) },
	}

	r := New()
	ctx := context.Background()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 15
	p := gopter.NewProperties(params)

	for name, fixture := range fixtures {
		p.Property(name+" reads back what was written", prop.ForAll(
			func(a, b uint64) bool {
				ts := metadata.New(rand.NewPCG(a, b)).Generate()
				path := fixture(t)

				if !assert.NoError(t, r.Write(ctx, path, ts)) {
					return false
				}
				got, err := r.ReadTags(ctx, path)
				return assert.NoError(t, err) && assert.Equal(t, ts, got.TagSet)
			},
			gen.UInt64(), gen.UInt64(),
		))
	}

	p.TestingRun(t)
}
