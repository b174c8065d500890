package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/display"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
)

// full scale of bar glyphs per stream kind
var barLimits = map[sensor.Kind]float64{
	sensor.Gyroscope: math.Pi, // rad/s
	sensor.Rotation:  1,       // quaternion vector part
}

var shortNames = map[sensor.Kind]string{
	sensor.Gyroscope: "gyr",
	sensor.Rotation:  "rot",
}

// barLevel returns bar glyph index of v within limit.
func barLevel(v, limit float64) int {
	level := int(math.Abs(v) / limit * float64(len(display.Blocks)-1))
	if level < 0 {
		return 0
	}
	if level > len(display.Blocks)-1 {
		return len(display.Blocks) - 1
	}
	return level
}

func bars(kind sensor.Kind, sample sensor.Sample) string {
	var b strings.Builder
	for _, v := range sample {
		b.WriteRune(display.Blocks[barLevel(v, barLimits[kind])])
	}
	return b.String()
}

func stateLabel(s StreamStatus) string {
	switch {
	case !s.Attached:
		return "off"
	case s.State == sensor.Active:
		return "ok"
	case s.LastError != nil:
		return "n/a"
	default:
		return "--"
	}
}

// fit pads or cuts s to exactly n runes.
func fit(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s + strings.Repeat(" ", n-len(r))
}

func streamLine(s StreamStatus, cols int) string {
	line := fmt.Sprintf("%s %-3s", shortNames[s.Kind], stateLabel(s))
	if s.State == sensor.Active && len(s.Last) > 0 {
		line += " " + bars(s.Kind, s.Last)
		if cols >= 20 {
			line += fmt.Sprintf(" %6.2f", s.Last[0])
		}
	}
	return fit(line, cols)
}

func graphLine(graph []uint, pointer, cols int) string {
	var maxGraph uint
	for _, v := range graph {
		if v > maxGraph {
			maxGraph = v
		}
	}
	if maxGraph < 8 {
		maxGraph = 8
	}

	var b strings.Builder
	for i := 0; i < cols && i < len(graph); i++ {
		v := graph[(pointer+i)%len(graph)]
		if v == 0 {
			b.WriteRune(' ')
			continue
		}
		realVal := float64(v) / (float64(maxGraph) + 1) * 7
		b.WriteRune(display.Blocks[int(realVal)])
	}
	return fit(b.String(), cols)
}

// renderLines lays out stream statuses, small panels only get one line per stream.
func renderLines(statuses []StreamStatus, perSecond uint, graph []uint, pointer, cols, rows int) [4]string {
	var lines [4]string
	var streams []string
	for _, s := range statuses {
		streams = append(streams, streamLine(s, cols))
	}

	if rows < 4 {
		copy(lines[:], streams)
		return lines
	}

	lines[0] = fit(fmt.Sprintf("samples/s: %*d", cols-11, perSecond), cols)
	copy(lines[1:3], streams)
	lines[3] = graphLine(graph, pointer, cols)
	return lines
}

func center(s string, cols int) string {
	n := len([]rune(s))
	if n >= cols {
		return fit(s, cols)
	}
	left := (cols - n) / 2
	return fit(strings.Repeat(" ", left)+s, cols)
}

func exitLines(cfg display.ScreenConfig, total uint) [4]string {
	cols, _ := cfg.Size()
	var lines [4]string

	if cfg.HaveExitMessage() {
		for i, msg := range cfg.ExitMessage {
			lines[i] = fit(msg, cols)
		}
		return lines
	}

	lines[0] = center(fmt.Sprintf("%c gyrostream", display.Spin), cols)
	lines[1] = center(fmt.Sprintf("detached %c", display.Check), cols)
	lines[2] = center(fmt.Sprintf("(samples: %d)", total), cols)
	lines[3] = fit("", cols)
	return lines
}

func GenerateDisplayData(ctx context.Context, wg *sync.WaitGroup, cfg display.ScreenConfig, monitor *Monitor) <-chan display.DisplayData {
	data := make(chan display.DisplayData)
	cols, rows := cfg.Size()
	period := time.Second / time.Duration(cfg.UpdateRate)

	go func() {
		defer wg.Done()
		defer close(data)

		var graph = make([]uint, cols)
		var graphPointer int
		var lastTotal = monitor.Total()

	root:
		for {
			start := time.Now()

			total := monitor.Total()
			perSecond := uint(float64(total-lastTotal) / period.Seconds())
			lastTotal = total

			graph[graphPointer] = perSecond
			graphPointer = (graphPointer + 1) % len(graph)

			select {
			case data <- display.DisplayData{
				Lines: renderLines(monitor.Snapshot(), perSecond, graph, graphPointer, cols, rows),
			}:
			case <-ctx.Done():
				break root
			}

			select {
			case <-ctx.Done():
				break root
			case <-time.After(period - time.Since(start)):
			}
		}

		data <- display.DisplayData{
			Lines:   exitLines(cfg, monitor.Total()),
			LastMsg: true,
		}
	}()

	return data
}
