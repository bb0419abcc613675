// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package ffmpeg shells out to ffmpeg/ffprobe for the video work the core
// cannot do natively: stream probing, poster-frame extraction, and 720p
// transcoding. Binary discovery beyond PATH lookup is the deployment's
// problem.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/logging"
)

// Binary names resolved via PATH.
const (
	ffmpegBin  = "ffmpeg"
	ffprobeBin = "ffprobe"
)

// Available reports whether both binaries resolve. Startup logs a warning
// when they don't; video ingestion then fails per-file.
func Available() bool {
	_, errProbe := exec.LookPath(ffprobeBin)
	_, errMpeg := exec.LookPath(ffmpegBin)
	return errProbe == nil && errMpeg == nil
}

// ProbeInfo is the subset of stream metadata the pipeline needs.
type ProbeInfo struct {
	// Duration is the container duration in seconds.
	Duration float64

	Width  int
	Height int

	// Rotation is the display rotation in degrees (0, 90, 180, 270, or
	// their negatives as ffprobe reports them).
	Rotation int
}

// Probe reads duration, dimensions and rotation from the first video
// stream. ffprobe emits key=value lines on stdout.
func Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:stream_side_data=rotation:format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, apperr.Wrap(apperr.IO,
			fmt.Sprintf("ffprobe %s: %s", path, strings.TrimSpace(stderr.String())), err)
	}

	info := &ProbeInfo{}
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			info.Width, _ = strconv.Atoi(value)
		case "height":
			info.Height, _ = strconv.Atoi(value)
		case "rotation":
			info.Rotation, _ = strconv.Atoi(value)
		case "duration":
			info.Duration, _ = strconv.ParseFloat(value, 64)
		}
	}
	return info, nil
}

// ExtractFirstFrame writes the first frame of src as a JPEG at dst.
func ExtractFirstFrame(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, ffmpegBin,
		"-y",
		"-i", src,
		"-vframes", "1",
		"-q:v", "2",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.IO,
			fmt.Sprintf("extract frame %s: %s", src, tail(stderr.String())), err)
	}
	return nil
}

// Transcode converts src to a 720p-capped MP4 at dst with faststart so the
// moov atom leads the file. Progress lines (`out_time_us=<int>`) arrive on
// stderr via -progress pipe:2; onProgress receives each parsed value.
func Transcode(ctx context.Context, src, dst string, onProgress func(outTimeUS int64)) error {
	cmd := exec.CommandContext(ctx, ffmpegBin,
		"-y",
		"-i", src,
		"-vf", `scale=trunc(oh*a/2)*2:min(ih\,720)`,
		"-movflags", "faststart",
		"-progress", "pipe:2",
		dst,
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperr.Wrap(apperr.IO, "transcode stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return apperr.Wrap(apperr.IO, "start ffmpeg", err)
	}

	var lastLines []string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lastLines = append(lastLines, line)
		if len(lastLines) > 16 {
			lastLines = lastLines[1:]
		}
		if value, ok := strings.CutPrefix(line, "out_time_us="); ok {
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && onProgress != nil {
				onProgress(us)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		logging.Error().Str("src", src).Strs("ffmpeg_tail", lastLines).Msg("transcode failed")
		return apperr.Wrap(apperr.IO, fmt.Sprintf("transcode %s", src), err)
	}
	return nil
}

// tail returns the last few lines of subprocess output for error messages.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}
