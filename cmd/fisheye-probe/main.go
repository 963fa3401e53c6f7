// fisheye-probe opens a capture source and reports what the backend
// negotiated: geometry, kind, controls, and the timestamps of the first
// frames. Useful for checking a camera or file before running fisheye.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/teslashibe/go-fisheye/internal/log"
	"github.com/teslashibe/go-fisheye/pkg/capture"
	_ "github.com/teslashibe/go-fisheye/pkg/capture/opencv"
)

// Report is the probe result printed with -json.
type Report struct {
	Backend  string           `json:"backend"`
	Kind     capture.Kind     `json:"kind"`
	Geometry capture.Geometry `json:"geometry"`
	Controls *ControlsReport  `json:"controls,omitempty"`
	Frames   []FrameReport    `json:"frames"`
	Rewind   string           `json:"rewind,omitempty"`
}

// ControlsReport holds the initial exposure and gain counters.
type ControlsReport struct {
	Exposure int `json:"exposure"`
	Gain     int `json:"gain"`
}

// FrameReport describes one grabbed frame.
type FrameReport struct {
	Seq    uint64  `json:"seq"`
	PTSMs  float64 `json:"pts_ms"`
	Bytes  int     `json:"bytes"`
	Stride int     `json:"stride"`
	GrabMs float64 `json:"grab_ms"`
}

func main() {
	cfg := capture.DefaultConfig()

	backend := flag.String("backend", string(cfg.Backend), "Capture backend: auto, opencv, mock")
	flag.StringVar(&cfg.Identifier, "source", cfg.Identifier, "Device index (0, 1, ...) or video path/URI")
	flag.StringVar(&cfg.Preset, "preset", "", fmt.Sprintf("Resolution preset: %v", capture.PresetNames()))
	flag.IntVar(&cfg.Width, "width", 0, "Requested frame width")
	flag.IntVar(&cfg.Height, "height", 0, "Requested frame height")
	flag.IntVar(&cfg.FPS, "fps", 0, "Requested FPS")
	frames := flag.Int("frames", 10, "Number of frames to grab")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg.Backend = capture.Backend(*backend)
	if *debug {
		log.Init("debug")
	} else {
		log.Init("warn")
	}

	report, err := probe(cfg, *frames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		return
	}
	printReport(os.Stdout, report)
}

// probe opens cfg, grabs up to n frames, and for file sources checks that
// a rewind restarts the stream.
func probe(cfg capture.Config, n int) (*Report, error) {
	src, err := capture.Open(cfg, log.L())
	if err != nil {
		return nil, err
	}
	defer src.Close()

	r := &Report{
		Backend:  src.Name(),
		Kind:     src.Kind(),
		Geometry: src.Geometry(),
	}
	if exposure, gain, ok := capture.ControlValues(src); ok && src.Kind() == capture.KindLive {
		r.Controls = &ControlsReport{Exposure: exposure, Gain: gain}
	}

	ended := false
	for i := 0; i < n; i++ {
		start := time.Now()
		f, ok := src.Grab()
		if !ok {
			ended = true
			break
		}
		r.Frames = append(r.Frames, FrameReport{
			Seq:    f.Seq,
			PTSMs:  float64(f.PTS) / float64(time.Millisecond),
			Bytes:  len(f.Pix),
			Stride: f.Stride,
			GrabMs: float64(time.Since(start)) / float64(time.Millisecond),
		})
	}

	if src.Kind() == capture.KindFile && ended {
		switch err := src.Rewind(); {
		case err == nil:
			if f, ok := src.Grab(); ok {
				r.Rewind = fmt.Sprintf("ok, first frame at %v", f.PTS)
			} else {
				r.Rewind = "ok, but no frame after rewind"
			}
		case errors.Is(err, capture.ErrRewindUnsupported):
			r.Rewind = "unsupported"
		default:
			r.Rewind = "failed: " + err.Error()
		}
	}
	return r, nil
}

func printReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "📷 %s source (%s)\n", r.Kind, r.Backend)
	fmt.Fprintf(w, "   Geometry: %s\n", r.Geometry)
	if r.Controls != nil {
		fmt.Fprintf(w, "   Exposure: %d  Gain: %d\n", r.Controls.Exposure, r.Controls.Gain)
	}
	for _, f := range r.Frames {
		fmt.Fprintf(w, "   #%-4d pts=%9.3fms  %d bytes  stride=%d  grab=%.2fms\n",
			f.Seq, f.PTSMs, f.Bytes, f.Stride, f.GrabMs)
	}
	if r.Rewind != "" {
		fmt.Fprintf(w, "   Rewind: %s\n", r.Rewind)
	}
}
