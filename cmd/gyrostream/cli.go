package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/awesome-gocui/gocui"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/logrusorgru/aurora"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	ViewLogs     = "logs"
	ViewOverview = "overview"
	ViewLCD      = "lcd"
)

func GetCli() (*gocui.Gui, error) {
	g, err := gocui.NewGui(gocui.Output256, true)
	if err != nil {
		return nil, err
	}

	g.SetManagerFunc(Layout)

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return nil, err
	}

	return g, nil
}

func Layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView(ViewOverview, 0, 0, maxX-1, 7, 0); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "[Streams]"
		v.Autoscroll = false
		v.Wrap = false
		v.Frame = true
	}

	if v, err := g.SetView(ViewLogs, 0, 7, maxX-1, maxY-1, gocui.TOP); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "[Logs]"
		v.Autoscroll = false
		v.Wrap = false
		v.Frame = true
	}

	if v, err := g.SetView(ViewLCD, maxX-22, 0, maxX-1, 5, 0); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "[lcd]"
		v.Autoscroll = false
		v.Wrap = true
		v.Frame = true
	}
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

type TimeNanosecond time.Time

func (j *TimeNanosecond) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*j = TimeNanosecond(time.Unix(0, v))
	return nil
}

func (j TimeNanosecond) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(j))
}

type Entry struct {
	Ts     TimeNanosecond `json:"ts"`
	Caller string         `json:"caller"`
	Msg    string         `json:"msg"`
	Level  int            `json:"level"`

	Stream      string `json:"stream"`
	Source      string `json:"source"`
	Sensor      string `json:"sensor"`
	Code        string `json:"code"`
	HandlerName string `json:"handler_name"`
	Topic       string `json:"topic"`
}

func unpack(data []byte) (Entry, error) {
	var v Entry
	err := json.Unmarshal(data, &v)
	return v, err
}

type Feeder struct {
	view     *gocui.View
	au       aurora.Aurora
	logLevel int
}

func NewFeeder(gui *gocui.Gui, viewName string, logLevel int, au aurora.Aurora) (Feeder, error) {
	v, err := gui.View(viewName)
	if err != nil {
		return Feeder{}, err
	}

	return Feeder{view: v, logLevel: logLevel, au: au}, nil
}

func gray(v uint8) aurora.Color {
	if v > 23 {
		v = 23
	}
	return aurora.Color(232+v) << 16
}

func color(r, g, b uint8) aurora.Color {
	return aurora.Color(16+36*r+6*g+b) << 16
}

// cubeIndex maps a color into the 6x6x6 cube of 256 color terminals.
func cubeIndex(c colorful.Color) uint8 {
	c = c.Clamped()
	r, g, b := uint8(c.R*5+0.5), uint8(c.G*5+0.5), uint8(c.B*5+0.5)
	return 16 + 36*r + 6*g + b
}

var (
	calm = colorful.Color{R: 0.2, G: 0.8, B: 0.4}
	hot  = colorful.Color{R: 1, G: 0.2, B: 0.2}
)

// gradientColor colors v between calm (t=0) and hot (t=1).
func gradientColor(au aurora.Aurora, t float64, v interface{}) aurora.Value {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return au.Index(cubeIndex(calm.BlendHcl(hot, t)), v)
}

func terminator(r rune) bool {
	if r >= 0x40 && r <= 0x7e {
		return true
	}
	return false
}

// returns random color for string, will return the same color for the same string
func colorForString(au aurora.Aurora, s string) aurora.Value {
	h := fnv.New32a()
	h.Write([]byte(s))
	sum := h.Sum32()

	r, g, b := uint8(sum)&0b00000111, uint8(sum>>8)&0b00000111, uint8(sum>>16)&0b00000111
	if r > 5 {
		r = 5
	}
	if g > 5 {
		g = 5
	}
	if b > 5 {
		b = 5
	}

	// avoid dark colors
	if r+g+b < 3 {
		r += 1
		g += 1
		b += 1
	}

	return au.Index(16+36*r+6*g+b, s)
}

// rawStringLen returns a len of string ignoring included escape sequences
func rawStringLen(s string) int {
	var sequence bool
	var escLens []int
	var escLen int

	for i, r := range s {
		if !sequence {
			if r == '\033' {
				if i >= len(s)-1 { // esc seems to be last character
					continue
				}
				if s[i+1] == '[' {
					sequence = true
					escLen += 1
					continue
				}

			}
		} else {
			if r == '[' && s[i-1] == '\033' {
				escLen += 1
				continue
			}
			if terminator(r) {
				sequence = false
				escLen += 1
				escLens = append(escLens, escLen)
				escLen = 0
			} else {
				escLen += 1
			}
		}
	}
	var sum int
	for _, x := range escLens {
		sum += x
	}
	return len(s) - sum
}

func levelColor(level int) aurora.Color {
	switch level {
	case logger.ErrorLvl:
		return color(5, 1, 1)
	case logger.WarningLvl:
		return color(5, 5, 1)
	case logger.InfoLvl:
		return gray(18)
	case logger.StreamLvl:
		return color(2, 4, 5)
	case logger.SamplesLvl:
		return gray(13)
	default:
		return gray(9)
	}
}

func prepareString(msg Entry, au aurora.Aurora, width, logLevel int) string {
	if msg.Level > logLevel {
		return ""
	}

	msgColor := levelColor(msg.Level)

	t := time.Time(msg.Ts)
	tf := t.Format("15:04:05.000")

	timestamp := fmt.Sprintf(
		"[%s]",
		au.Reset(tf).Colorize(color(1, 1, 5)).String(),
	)

	var fields []string
	for _, f := range []struct {
		label, value string
	}{
		{"stream", msg.Stream},
		{"source", msg.Source},
		{"sensor", msg.Sensor},
		{"code", msg.Code},
		{"handler", msg.HandlerName},
		{"topic", msg.Topic},
	} {
		if f.value != "" {
			fields = append(fields, fmt.Sprintf("[%s=%s]", f.label, colorForString(au, f.value).String()))
		}
	}
	if logLevel >= logger.DebugLvl && msg.Caller != "" {
		x := strings.SplitN(msg.Caller, ":", 2)
		if len(x) == 2 {
			fields = append(fields, fmt.Sprintf("(%s:%s)", colorForString(au, x[0]).String(), x[1]))
		}
	}
	joined := strings.Join(fields, " ")

	fieldsLen := rawStringLen(joined)
	timeLen := rawStringLen(timestamp)
	msgLen := len(msg.Msg)

	if width < 0 {
		m := au.Reset(msg.Msg).Colorize(msgColor).String()
		return strings.TrimRight(fmt.Sprintf("%s %s %s", timestamp, m, joined), " ")
	}

	var m string
	freeSpace := width - (timeLen + 1 + msgLen + 1 + fieldsLen)
	if freeSpace < 0 {
		limit := (width - (fieldsLen + 1 + timeLen + 1)) - 3
		if limit < 20 {
			m = au.Reset(msg.Msg).Colorize(msgColor).String()
			joined = au.Gray(12, "(fields hidden)").String()
			freeSpace = width - (timeLen + 1 + msgLen + 1 + rawStringLen(joined))
			if freeSpace < 0 {
				freeSpace = 0
			}
		} else {
			m = au.Reset(msg.Msg[:limit] + "(…)").Colorize(msgColor).String()
			freeSpace = 0
		}
	} else {
		m = au.Reset(msg.Msg).Colorize(msgColor).String()
	}

	separators := strings.Repeat(" ", freeSpace)
	return fmt.Sprintf("%s %s%s %s", timestamp, m, separators, joined)
}

func (f *Feeder) Write(data []byte) {
	msg, err := unpack(data)
	if err != nil {
		f.view.Write(data)
		f.view.Write([]byte{'\n'})
		return
	}

	x, _ := f.view.Size()

	s := prepareString(msg, f.au, x, f.logLevel)
	if s != "" {
		f.view.Write([]byte(s))
		f.view.Write([]byte{'\n'})
	}
}
