package app

import (
	"fmt"
	"image/color"
	"runtime/debug"
	"strings"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"rmk/firmware/services/status"
	"rmk/hal"
)

// showPanic logs a task panic with its stack and paints it on the display.
func showPanic(h hal.HAL, task string, v any) {
	stack := debug.Stack()
	if l := h.Logger(); l != nil {
		l.WriteLineString(fmt.Sprintf("rmk panic: task=%s panic=%v", task, v))
		for _, line := range strings.Split(string(stack), "\n") {
			if line != "" {
				l.WriteLineString(line)
			}
		}
	}

	disp := h.Display()
	if disp == nil || disp.Framebuffer() == nil {
		return
	}
	fb := disp.Framebuffer()
	fb.ClearRGB(255, 255, 255)

	lines := []string{
		"rmk panic",
		"task: " + task,
		fmt.Sprintf("panic: %v", v),
	}
	if len(stack) > 0 {
		lines = append(lines, "stack:")
		for _, line := range strings.Split(string(stack), "\n") {
			if line != "" {
				lines = append(lines, strings.TrimSpace(line))
			}
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}
	drawLines(status.NewDisplay(fb), lines, color.RGBA{A: 255})
	_ = fb.Present()
}

// drawLines writes lines top to bottom, wrapping long ones at the display
// width, until the display is full.
func drawLines(d *status.Display, lines []string, fg color.RGBA) {
	font := &proggy.TinySZ8pt7b
	_, outbox := tinyfont.LineWidth(font, "0")
	cols := 1
	maxW, maxH := d.Size()
	if outbox > 0 {
		cols = max(1, int(maxW)/int(outbox))
	}
	pitch := int16(font.GetYAdvance())
	y := pitch
	for _, line := range lines {
		for len(line) > 0 {
			if y > maxH {
				return
			}
			chunk, rest := takeRunes(line, cols)
			tinyfont.WriteLine(d, font, 0, y, chunk, fg)
			y += pitch
			line = strings.TrimLeft(rest, " ")
		}
	}
}

func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], s[i:]
		}
		count++
	}
	return s, ""
}
