package repl

import "github.com/fatih/color"

type style struct {
	reply  *color.Color
	notice *color.Color
	info   *color.Color
	err    *color.Color
}

func newStyle(noColor bool) style {
	s := style{
		reply:  color.New(color.FgCyan),
		notice: color.New(color.FgYellow),
		info:   color.New(color.FgGreen),
		err:    color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{s.reply, s.notice, s.info, s.err} {
			c.DisableColor()
		}
	}
	return s
}
