package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/kilianp07/doser/core/model"
	"github.com/kilianp07/doser/core/panel"
)

var gestures = map[string]panel.Input{
	"+": panel.RotateCW,
	"-": panel.RotateCCW,
	"c": panel.Click,
	"l": panel.LongPress,
	"d": panel.DoubleClick,
}

// runConsole maps one gesture per input line onto the panel and prints the
// resulting view. "s" only prints the view.
func runConsole(ctx context.Context, r io.Reader, w io.Writer, p *panel.Panel) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line != "s" {
			in, ok := gestures[line]
			if !ok {
				fmt.Fprintf(w, "unknown input %q (use + - c l d s)\n", line)
				continue
			}
			p.Handle(in)
		}
		fmt.Fprintln(w, renderView(p.View()))
	}
	return sc.Err()
}

func renderView(v panel.View) string {
	name := bold("%s", v.Liquid)
	target := fmt.Sprintf("%.1f g", v.Target)
	if v.Mode == panel.ModeEdit {
		target = color.New(color.Bold, color.FgYellow).Sprintf("[%s]", target)
	}
	return fmt.Sprintf("%d %s %s %s %5.1f%%", v.Selected+1, name, target, stateString(v.State), v.Progress)
}

func stateString(s model.State) string {
	switch s {
	case model.StateIdle:
		return color.GreenString(s.String())
	case model.StateDone:
		return color.New(color.Bold, color.FgGreen).Sprint(s.String())
	default:
		return color.YellowString(s.String())
	}
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
