package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Speech model input invariants. Not configurable per call.
const (
	pcmCodec      = "pcm_s16le"
	sampleRateHz  = "16000"
	audioChannels = "1"
)

// ffmpegArgs builds the transcode command line. mp4 input may carry a video
// track, so it gets -vn to keep only audio.
func ffmpegArgs(inputPath, outputPath, fileType string) []string {
	args := []string{"-y", "-i", inputPath}
	if fileType == "mp4" {
		args = append(args, "-vn")
	}
	args = append(args,
		"-acodec", pcmCodec,
		"-ar", sampleRateHz,
		"-ac", audioChannels,
		outputPath,
	)
	return args
}

// transcodeToWAV normalizes inputPath to a mono 16 kHz PCM WAV next to it
// and returns the output path. The caller removes both files.
func transcodeToWAV(ctx context.Context, ffmpegPath, inputPath, fileType string) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, "."+fileType) + ".wav"

	cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(inputPath, outputPath, fileType)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// ffmpeg may have created a partial output before failing.
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg %s -> wav: %w: %s", fileType, err, tail(stderr.String(), 300))
	}
	return outputPath, nil
}

// tail returns the last n bytes of s; ffmpeg puts the useful error at the
// end of a long banner.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
