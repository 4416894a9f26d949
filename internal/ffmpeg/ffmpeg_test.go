package ffmpeg

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	skipIfNoFFmpeg(t)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	exec, err := New(logger, 2)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	return exec
}

// makeClip renders a synthetic test pattern clip with an optional sine track.
func makeClip(t *testing.T, path string, seconds float64, size string, withAudio bool) {
	t.Helper()
	d := strconv.FormatFloat(seconds, 'f', -1, 64)
	args := []string{"-y", "-f", "lavfi", "-i", "testsrc=duration=" + d + ":size=" + size + ":rate=30"}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", "sine=frequency=1000:duration="+d)
	}
	args = append(args, "-pix_fmt", "yuv420p", "-c:v", "libx264")
	if withAudio {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	args = append(args, path)
	if out, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Skipf("could not generate test clip: %v\n%s", err, out)
	}
}

func TestFilterBuilder(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Scale(1920, 1080).FPS(30).Build()

	expected := "scale=1920:1080,fps=30.000000"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderEmpty(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Build()

	if filter != "" {
		t.Errorf("expected empty string, got %q", filter)
	}
}

func TestFilterBuilderNormalizeChain(t *testing.T) {
	got := DefaultEncoding().normalizeVideo()
	expected := "scale=1920:1080:force_original_aspect_ratio=decrease," +
		"pad=1920:1080:(ow-iw)/2:(oh-ih)/2,setsar=1,setpts=PTS-STARTPTS,fps=30.000000"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestFilterBuilderAudioChain(t *testing.T) {
	got := DefaultEncoding().normalizeAudio()
	expected := "aresample=44100:async=1:min_hard_comp=0.100000:first_pts=0," +
		"aformat=channel_layouts=stereo,asetpts=PTS-STARTPTS"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestXfadeOffsets(t *testing.T) {
	offsets := XfadeOffsets([]float64{8, 8, 8}, 1)
	want := []float64{7, 14}
	if len(offsets) != len(want) {
		t.Fatalf("expected %d offsets, got %d", len(want), len(offsets))
	}
	for i := range want {
		if math.Abs(offsets[i]-want[i]) > 1e-9 {
			t.Errorf("offset %d: expected %v, got %v", i, want[i], offsets[i])
		}
	}

	if XfadeOffsets([]float64{5}, 1) != nil {
		t.Error("a single clip has no transitions")
	}
}

func TestXfadeOffsetsMonotonic(t *testing.T) {
	durations := []float64{4.2, 6.0, 1.5, 8.0, 2.1}
	offsets := XfadeOffsets(durations, 1.0)
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Errorf("offsets not increasing at %d: %v", i, offsets)
		}
	}
}

func TestTimelineDuration(t *testing.T) {
	if got := TimelineDuration([]float64{8, 8, 8}, 1); got != 22 {
		t.Errorf("expected 22, got %v", got)
	}
	if got := TimelineDuration([]float64{5}, 1); got != 5 {
		t.Errorf("single clip should keep its length, got %v", got)
	}
}

func TestCrossfadeGraph(t *testing.T) {
	enc := DefaultEncoding()
	infos := []*VideoInfo{
		{Duration: 8 * time.Second, HasAudio: true},
		{Duration: 8 * time.Second, HasAudio: false},
	}
	g := enc.buildInputs([]string{"a.mp4", "b.mp4"}, infos)

	// second clip has no audio, so a silent lavfi input is appended as #2
	args := strings.Join(g.args, " ")
	if !strings.Contains(args, "-f lavfi -t 8.000 -i anullsrc") {
		t.Errorf("expected silent track input, got %q", args)
	}

	graph, vout, aout := crossfadeGraph(g, XfadeOffsets([]float64{8, 8}, 1), 1)
	if !strings.Contains(graph, "[v0][v1]xfade=transition=fade:duration=1.000:offset=7.000[vx1]") {
		t.Errorf("missing xfade step: %s", graph)
	}
	if !strings.Contains(graph, "[a0][a1]acrossfade=d=1.000[ax1]") {
		t.Errorf("missing acrossfade step: %s", graph)
	}
	if !strings.Contains(graph, "[2:a]aresample=") {
		t.Errorf("silent track should feed a1: %s", graph)
	}
	if vout != "vx1" || aout != "ax1" {
		t.Errorf("unexpected output labels %s %s", vout, aout)
	}
}

func TestConcatGraph(t *testing.T) {
	enc := DefaultEncoding()
	infos := []*VideoInfo{
		{Duration: 4 * time.Second, HasAudio: true},
		{Duration: 4 * time.Second, HasAudio: true},
		{Duration: 4 * time.Second, HasAudio: true},
	}
	graph := concatGraph(enc.buildInputs([]string{"a", "b", "c"}, infos))
	if !strings.HasSuffix(graph, "[v0][a0][v1][a1][v2][a2]concat=n=3:v=1:a=1[vout][aout]") {
		t.Errorf("unexpected concat graph: %s", graph)
	}
}

func TestLogoGraph(t *testing.T) {
	got := logoGraph(LogoOptions{Width: 200, Margin: 20})
	want := "[1:v]scale=200:-1[logo];[0:v][logo]overlay=main_w-overlay_w-20:20"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSelectExpr(t *testing.T) {
	got := selectExpr(dedupeSorted([]int{20, 5, 10, 20}))
	want := "select='eq(n,5)+eq(n,10)+eq(n,20)'"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTailBufferSkipsProgress(t *testing.T) {
	tb := newTailBuffer(2)
	tb.Add("frame=10")
	tb.Add("out_time=00:00:01.000000")
	tb.Add("Input #0, mov,mp4 from 'a.mp4':")
	tb.Add("Stream mapping:")
	tb.Add("a.mp4: No such file or directory")

	got := tb.String()
	if strings.Contains(got, "frame=") {
		t.Errorf("progress lines leaked into tail: %q", got)
	}
	if lastLine(got) != "a.mp4: No such file or directory" {
		t.Errorf("unexpected last line %q", lastLine(got))
	}
	if strings.Count(got, "\n") != 1 {
		t.Errorf("tail should hold 2 lines, got %q", got)
	}
}

func TestProbeVideoInvalidFile(t *testing.T) {
	exec := newTestExecutor(t)
	ctx := context.Background()

	if _, err := exec.ProbeVideo(ctx, "nonexistent.mp4"); err == nil {
		t.Error("ProbeVideo should fail for non-existent file")
	}

	invalidPath := filepath.Join(t.TempDir(), "invalid.txt")
	os.WriteFile(invalidPath, []byte("not a video"), 0644)

	if _, err := exec.ProbeVideo(ctx, invalidPath); err == nil {
		t.Error("ProbeVideo should fail for invalid video file")
	}
}

func TestRunReturnsCommandError(t *testing.T) {
	exec := newTestExecutor(t)

	err := exec.Run(context.Background(), RunOptions{
		Args: []string{"-i", filepath.Join(t.TempDir(), "missing.mp4"), "out.mp4"},
	})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Stderr == "" {
		t.Error("expected captured stderr")
	}
}

func TestConcatFailureExposesCommandError(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()

	err := exec.Concat(context.Background(), ConcatOptions{
		Inputs: []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")},
		Output: filepath.Join(dir, "out.mp4"),
	})
	if !errors.Is(err, ErrAssemblyFailed) {
		t.Fatalf("expected ErrAssemblyFailed, got %v", err)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected wrapped CommandError, got %v", err)
	}
	if cmdErr.Stderr == "" {
		t.Error("expected captured stderr")
	}
}

func TestConcatSingleInputCopies(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "one.mp4")
	out := filepath.Join(dir, "out.mp4")
	makeClip(t, in, 2, "320x240", true)

	if err := exec.Concat(context.Background(), ConcatOptions{Inputs: []string{in}, Output: out}); err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	info, err := exec.ProbeVideo(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("single input must not be re-encoded, got %dx%d", info.Width, info.Height)
	}
}

func TestConcatTwoClips(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	out := filepath.Join(dir, "out.mp4")
	makeClip(t, a, 2, "320x240", true)
	makeClip(t, b, 2, "320x240", true)

	if err := exec.Concat(context.Background(), ConcatOptions{Inputs: []string{a, b}, Output: out}); err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	info, err := exec.ProbeVideo(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(info.Seconds()-4) > 0.3 {
		t.Errorf("expected ~4s, got %.2fs", info.Seconds())
	}
}

func TestCrossfadeDuration(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()
	var inputs []string
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		p := filepath.Join(dir, name)
		makeClip(t, p, 2, "320x240", name != "b.mp4")
		inputs = append(inputs, p)
	}
	out := filepath.Join(dir, "xfade.mp4")

	err := exec.Crossfade(context.Background(), CrossfadeOptions{Inputs: inputs, Output: out, Duration: 0.5})
	if err != nil {
		t.Fatalf("Crossfade failed: %v", err)
	}

	info, err := exec.ProbeVideo(context.Background(), out)
	if err != nil {
		t.Fatal(err)
	}
	want := TimelineDuration([]float64{2, 2, 2}, 0.5)
	if math.Abs(info.Seconds()-want) > 0.3 {
		t.Errorf("expected ~%.2fs, got %.2fs", want, info.Seconds())
	}
	if info.Width != DefaultWidth || info.Height != DefaultHeight {
		t.Errorf("expected normalized %dx%d, got %dx%d", DefaultWidth, DefaultHeight, info.Width, info.Height)
	}
}

func TestCrossfadeRejectsShortClip(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	makeClip(t, a, 2, "320x240", true)
	makeClip(t, b, 0.4, "320x240", true)

	err := exec.Crossfade(context.Background(), CrossfadeOptions{
		Inputs: []string{a, b}, Output: filepath.Join(dir, "out.mp4"), Duration: 1,
	})
	if !errors.Is(err, ErrAssemblyFailed) {
		t.Errorf("expected ErrAssemblyFailed, got %v", err)
	}
}

func TestExtractFrames(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.mp4")
	makeClip(t, in, 2, "320x240", false)

	frames, err := exec.ExtractFrames(context.Background(), in, filepath.Join(dir, "frames"), []int{20, 5, 10, 20})
	if err != nil {
		t.Fatalf("ExtractFrames failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].Index != 5 || frames[2].Index != 20 {
		t.Errorf("frames not in ascending index order: %+v", frames)
	}
}

func TestEndCardAndLogo(t *testing.T) {
	exec := newTestExecutor(t)
	dir := t.TempDir()

	card := filepath.Join(dir, "card.png")
	writePNG(t, card, 640, 360)
	logo := filepath.Join(dir, "logo.png")
	writePNG(t, logo, 100, 50)

	in := filepath.Join(dir, "main.mp4")
	makeClip(t, in, 2, "1920x1080", true)
	ctx := context.Background()

	logoOut := filepath.Join(dir, "logo.mp4")
	if err := exec.OverlayLogo(ctx, in, logo, logoOut, LogoOptions{Width: 200, Margin: 20}); err != nil {
		t.Fatalf("OverlayLogo failed: %v", err)
	}

	cardOut := filepath.Join(dir, "card.mp4")
	if err := exec.RenderEndCard(ctx, card, cardOut, EndCardOptions{Seconds: 3, Color: "#0055aa"}); err != nil {
		t.Fatalf("RenderEndCard failed: %v", err)
	}

	final := filepath.Join(dir, "final.mp4")
	if err := exec.AppendWithCrossfade(ctx, logoOut, cardOut, final, 0.5); err != nil {
		t.Fatalf("AppendWithCrossfade failed: %v", err)
	}

	info, err := exec.ProbeVideo(ctx, final)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(info.Seconds()-4.5) > 0.3 {
		t.Errorf("expected ~4.5s, got %.2fs", info.Seconds())
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 80, B: uint8(y % 256), A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestStreamOutputProgress(t *testing.T) {
	e := &Executor{logger: zerolog.Nop()}
	in := strings.Join([]string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'a.mp4':",
		"frame=  12 fps=0.0 q=28.0 size=       0kB time=00:00:00.40",
		"frame=45",
		"fps=29.97",
		"bitrate=1200.1kbits/s",
		"out_time_us=1500000",
		"out_time=00:00:01.500000",
		"speed=1.5x",
		"progress=continue",
		"frame=90",
		"out_time_us=9000000",
		"progress=end",
	}, "\n")

	var got []Progress
	var lines int
	e.streamOutput(strings.NewReader(in), 3*time.Second, func(p *Progress) {
		got = append(got, *p)
	}, func(string) { lines++ })

	if lines != 12 {
		t.Errorf("log handler saw %d lines, want 12", lines)
	}
	if len(got) != 2 {
		t.Fatalf("got %d progress updates, want 2", len(got))
	}
	if got[0].Frame != 45 || got[0].Time != "00:00:01.500000" || got[0].Speed != "1.5x" {
		t.Errorf("first update = %+v", got[0])
	}
	if got[0].Percentage != 50 {
		t.Errorf("percentage = %v, want 50", got[0].Percentage)
	}
	if got[1].Percentage != 100 {
		t.Errorf("percentage capped = %v, want 100", got[1].Percentage)
	}
}
