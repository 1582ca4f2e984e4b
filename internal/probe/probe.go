// Package probe reads container-level dimensions, duration, and rotation
// via ffprobe, reporting display-corrected dimensions per SPEC_FULL.md §4.3.
package probe

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/clipforge/shorts-worker/internal/ffmpegutil"
	"github.com/clipforge/shorts-worker/internal/werror"
)

// Result is the Media Probe's output: source pixel dimensions, the rotation
// tag, and the display dimensions after accounting for that rotation.
type Result struct {
	Width         int
	Height        int
	DisplayWidth  int
	DisplayHeight int
	Rotation      int // one of 0, 90, 180, 270
	Duration      float64
}

type ffprobeOutput struct {
	Streams []struct {
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
		Tags      struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			SideDataType string  `json:"side_data_type"`
			Rotation     float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against path and returns its dimensions, rotation, and
// duration. It fails with CorruptMedia on unreadable headers, zero
// dimensions, or non-positive duration.
func Probe(ctx context.Context, tc *ffmpegutil.Toolchain, path string, timeout time.Duration) (Result, error) {
	out, err := tc.RunFFprobe(ctx, timeout,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration:stream_tags=rotate:side_data_list:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Result{}, werror.Wrap(werror.CorruptMedia, "probe", err, "ffprobe failed")
	}

	var data ffprobeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return Result{}, werror.Wrap(werror.CorruptMedia, "probe", err, "parsing ffprobe output")
	}
	if len(data.Streams) == 0 {
		return Result{}, werror.New(werror.CorruptMedia, "probe", "no video stream found")
	}

	s0 := data.Streams[0]
	if s0.Width <= 0 || s0.Height <= 0 {
		return Result{}, werror.New(werror.CorruptMedia, "probe", "invalid dimensions")
	}

	rotation := 0
	if s0.Tags.Rotate != "" {
		if r, err := strconv.ParseFloat(s0.Tags.Rotate, 64); err == nil {
			rotation = int(r)
		}
	}
	if rotation == 0 {
		for _, sd := range s0.SideDataList {
			if sd.SideDataType == "Display Matrix" || sd.SideDataType == "Display Matrix Side Data" {
				rotation = int(sd.Rotation)
				break
			}
		}
	}
	rotation = ((rotation % 360) + 360) % 360

	durationStr := s0.Duration
	if durationStr == "" {
		durationStr = data.Format.Duration
	}
	duration, _ := strconv.ParseFloat(durationStr, 64)
	if duration <= 0 {
		return Result{}, werror.New(werror.CorruptMedia, "probe", "non-positive duration")
	}

	dispW, dispH := s0.Width, s0.Height
	if rotation == 90 || rotation == 270 {
		dispW, dispH = s0.Height, s0.Width
	}

	return Result{
		Width:         s0.Width,
		Height:        s0.Height,
		DisplayWidth:  dispW,
		DisplayHeight: dispH,
		Rotation:      rotation,
		Duration:      duration,
	}, nil
}
