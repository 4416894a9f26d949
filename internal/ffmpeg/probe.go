package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/kikiluvv/scenechain/pkg/util"
)

// ProbeVideo extracts metadata from a video file
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	// stdout carries only the JSON document; stderr is kept for the error
	output, err := exec.CommandContext(ctx, e.ffprobePath, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe %s: %w", filePath, &CommandError{Args: args, Stderr: string(exitErr.Stderr), Err: err})
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(filePath, output)
}

// Durations probes every input and returns their lengths in seconds.
func (e *Executor) Durations(ctx context.Context, inputs []string) ([]float64, []*VideoInfo, error) {
	durations := make([]float64, len(inputs))
	infos := make([]*VideoInfo, len(inputs))
	for i, in := range inputs {
		info, err := e.ProbeVideo(ctx, in)
		if err != nil {
			return nil, nil, fmt.Errorf("probe %s: %w", in, err)
		}
		if info.Duration <= 0 {
			return nil, nil, fmt.Errorf("probe %s: unknown duration", in)
		}
		durations[i] = info.Seconds()
		infos[i] = info
	}
	return durations, infos, nil
}

func parseProbe(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{
		FilePath: filePath,
	}

	if dur, err := util.ParseSeconds(probe.Format.Duration); err == nil {
		info.Duration = dur
	}

	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	videoFound := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName

			// Calculate FPS from r_frame_rate (e.g., "30/1")
			if stream.AvgFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.AvgFrameRate)
			}
			if info.FPS == 0 && stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
			if n, err := strconv.Atoi(stream.NbFrames); err == nil {
				info.Frames = n
			}
			if info.Duration == 0 {
				if dur, err := util.ParseSeconds(stream.Duration); err == nil {
					info.Duration = dur
				}
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
			if br, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
				info.AudioBitrate = br
			}
		}
	}

	if !videoFound {
		return nil, fmt.Errorf("no video stream in %s", filePath)
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
		BitRate      string `json:"bit_rate"`
	} `json:"streams"`
}
