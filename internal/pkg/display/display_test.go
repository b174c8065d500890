package display

import (
	"testing"

	"github.com/d2r2/go-hd44780"
	"github.com/stretchr/testify/assert"
)

func TestReplaceCharsForDisplay(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ascii", input: "gyro: 0.12", expected: "gyro: 0.12"},
		{name: "bars", input: "▁▄█", expected: "\x00\x03\x07"},
		{name: "exit glyphs", input: "↻ bye ✓", expected: "\x00 bye \x01"},
		{name: "unsupported", input: "x°", expected: "x?"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, replaceCharsForDisplay(tc.input))
		})
	}
}

func TestScreenConfig(t *testing.T) {
	lcdType, ok := ParseLcdType("16x2")
	assert.True(t, ok)
	cfg := ScreenConfig{LcdType: lcdType}
	cols, rows := cfg.Size()
	assert.Equal(t, 16, cols)
	assert.Equal(t, 2, rows)
	assert.False(t, cfg.HaveExitMessage())

	lcdType, ok = ParseLcdType("20x4")
	assert.True(t, ok)
	assert.Equal(t, hd44780.LCD_20x4, lcdType)

	_, ok = ParseLcdType("40x2")
	assert.False(t, ok)

	cfg.ExitMessage[2] = "bye"
	assert.True(t, cfg.HaveExitMessage())
}
