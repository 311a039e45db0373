package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"metadata-injector/errors"
	"metadata-injector/metadata"
)

// ffmpegFormat writes tags by remuxing the file with ffmpeg, streams are
// copied as they are
type ffmpegFormat struct {
	name    string
	ffmpeg  string
	ffprobe string
}

func (f *ffmpegFormat) Name() string { return f.name }

func lookTool(op errors.Op, name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.E(op, errors.ToolMissing, errors.Info(name), err)
	}
	return path, nil
}

// CheckTools reports whether the ffmpeg and ffprobe executables used for
// Matroska files can be found
func (r *Registry) CheckTools() error {
	const op errors.Op = "audio.CheckTools"

	for _, name := range []string{r.ffmpeg, r.ffprobe} {
		if _, err := lookTool(op, name); err != nil {
			return err
		}
	}
	return nil
}

func (f *ffmpegFormat) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.ffmpeg.Write"

	ffmpeg, err := lookTool(op, f.ffmpeg)
	if err != nil {
		return err
	}
	if err := statFile(op, path); err != nil {
		return err
	}

	out, err := newPending(path)
	if err != nil {
		return errors.E(op, err)
	}
	defer out.Discard()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", path,
		"-map", "0",
		"-map_metadata", "0",
		"-c", "copy",
	}
	for _, kv := range [][2]string{
		{"title", ts.Title},
		{"artist", ts.Artist},
		{"album", ts.Album},
		{"date", ts.Year},
		{"comment", ts.Comment},
		{"genre", ts.Genre},
		{"track", ts.Track},
	} {
		args = append(args, "-metadata", kv[0]+"="+kv[1])
	}
	args = append(args, out.Name())

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		// ffmpeg exits the same way for unreadable input and for muxing
		// errors, probing the input tells them apart
		if _, perr := f.probe(ctx, path); perr != nil && !errors.Is(errors.ToolMissing, perr) {
			return errors.E(op, errors.TagOpen, errors.Info(cmd.String()), msg)
		}
		return errors.E(op, errors.TagWrite, errors.Info(cmd.String()), msg)
	}

	return out.Commit()
}

// probeInfo is the subset of the ffprobe json output that is used here
type probeInfo struct {
	Format struct {
		FormatName     string            `json:"format_name"`
		FormatLongName string            `json:"format_long_name"`
		Duration       string            `json:"duration"`
		BitRate        string            `json:"bit_rate"`
		NbStreams      int               `json:"nb_streams"`
		Tags           map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Index     int    `json:"index"`
		CodecName string `json:"codec_name"`
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// tag returns the value of a format tag, Matroska stores them upper-cased
func (p *probeInfo) tag(names ...string) string {
	for _, name := range names {
		for k, v := range p.Format.Tags {
			if strings.EqualFold(k, name) {
				return v
			}
		}
	}
	return ""
}

func (f *ffmpegFormat) probe(ctx context.Context, path string) (*probeInfo, error) {
	const op errors.Op = "audio.ffmpeg.probe"

	ffprobe, err := lookTool(op, f.ffprobe)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-loglevel", "fatal",
		"-show_error", "-show_format", "-show_streams",
		"-of", "json=c=1",
		"-i", path)

	out, err := cmd.Output()
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, errors.Info(cmd.String()), err)
	}

	var info probeInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}
	return &info, nil
}

func (f *ffmpegFormat) Read(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.ffmpeg.Read"

	if err := statFile(op, path); err != nil {
		return Tags{}, err
	}
	info, err := f.probe(ctx, path)
	if err != nil {
		return Tags{}, errors.E(op, err)
	}

	tags := Tags{TagSet: metadata.TagSet{
		Title:   info.tag("title"),
		Artist:  info.tag("artist"),
		Album:   info.tag("album"),
		Year:    info.tag("date", "year"),
		Comment: info.tag("comment", "description"),
		Genre:   info.tag("genre"),
		Track:   info.tag("track", "part_number"),
	}}
	// "7/20" style values carry the total
	if track, total, ok := strings.Cut(tags.Track, "/"); ok {
		tags.Track = track
		tags.TrackTotal, _ = strconv.Atoi(total)
	}
	return tags, nil
}

// details reports container facts for Inspect
func (f *ffmpegFormat) details(ctx context.Context, path string) (map[string]string, error) {
	info, err := f.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	d := map[string]string{
		"container": info.Format.FormatLongName,
		"streams":   strconv.Itoa(info.Format.NbStreams),
	}
	if info.Format.Duration != "" {
		d["duration"] = info.Format.Duration + "s"
	}
	if info.Format.BitRate != "" {
		d["bitrate"] = info.Format.BitRate
	}
	codecs := make([]string, 0, len(info.Streams))
	for _, s := range info.Streams {
		codecs = append(codecs, s.CodecType+":"+s.CodecName)
	}
	if len(codecs) > 0 {
		d["codecs"] = strings.Join(codecs, ",")
	}
	return d, nil
}
