package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/awesome-gocui/gocui"
	"github.com/gethiox/gyrostream/internal/pkg/display"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/logrusorgru/aurora"
)

func coloredBars(au aurora.Aurora, kind sensor.Kind, sample sensor.Sample) string {
	var b strings.Builder
	for _, v := range sample {
		t := math.Abs(v) / barLimits[kind]
		b.WriteString(gradientColor(au, t, string(display.Blocks[barLevel(v, barLimits[kind])])).String())
	}
	return b.String()
}

func overviewLines(au aurora.Aurora, statuses []StreamStatus) []string {
	var lines []string
	for _, s := range statuses {
		header := fmt.Sprintf(
			"%-16s %-8s samples: %8d, errors: %4d",
			s.Kind.StreamID(),
			s.State.String(),
			s.Samples,
			s.Errors,
		)
		if s.Sensor != "" {
			header += ", sensor: " + colorForString(au, s.Sensor).String()
		}

		var description string
		switch {
		case s.State == sensor.Active && len(s.Last) > 0:
			description = fmt.Sprintf("└ %s %s", coloredBars(au, s.Kind, s.Last), s.Last.String())
		case s.LastError != nil:
			description = fmt.Sprintf("└ %s: %s", au.Colorize(s.LastError.Code, levelColor(logger.ErrorLvl)).String(), s.LastError.Message)
		default:
			description = "└ idle"
		}
		lines = append(lines, header, description)
	}
	return lines
}

func overviewView(g *gocui.Gui, colors bool, monitor *Monitor) {
	view, err := g.View(ViewOverview)
	if err != nil {
		panic(err)
	}

	au := aurora.NewAurora(colors)

	for {
		viewData := overviewLines(au, monitor.Snapshot())
		x, y := view.Size()

		view.Rewind()
		for i := 0; i < y; i++ {
			line := ""
			if i < len(viewData) {
				line = viewData[i]
			}
			freeSpace := x - rawStringLen(line)
			if freeSpace < 0 {
				freeSpace = 0
			}
			view.Write([]byte(line + strings.Repeat(" ", freeSpace)))
			view.Write([]byte{'\n'})
		}
		time.Sleep(time.Millisecond * 250)
	}
}

func logView(g *gocui.Gui, color bool, logLevel, bufSize int) {
	feeder, err := NewFeeder(g, ViewLogs, logLevel, aurora.NewAurora(color))
	if err != nil {
		panic(err)
	}

	buf := newLogBuffer(bufSize)

	var newMessage = make(chan bool, 1)

	go func() {
		for msg := range logger.Messages {
			buf.WriteMessage(msg)
			select {
			case newMessage <- true:
			default:
			}
		}
		close(newMessage)
	}()

	resize := time.NewTicker(time.Millisecond * 100)
	defer resize.Stop()

	var lastX, lastY int
	for {
		select {
		case _, ok := <-newMessage:
			if !ok {
				return
			}
		case <-resize.C:
			x, y := feeder.view.Size()
			if x == lastX && y == lastY {
				continue
			}
			lastX, lastY = x, y
		}

		feeder.view.Rewind()
		_, y := feeder.view.Size()
		for _, msg := range buf.ReadLastMessages(y) {
			feeder.Write(msg)
		}
	}
}

func lcdView(g *gocui.Gui, dd <-chan display.DisplayData) {
	view, err := g.View(ViewLCD)
	if err != nil {
		panic(err)
	}

	for data := range dd {
		view.Rewind()
		for _, s := range data.Lines {
			view.Write([]byte(s))
			view.Write([]byte{'\n'})
		}
	}
}
