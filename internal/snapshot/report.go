package snapshot

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// WriteReport prints an impact analysis of r to w.
func WriteReport(w io.Writer, r *Report) error {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if r.Empty() {
		_, err := green.Fprintln(w, "Impact analysis: no relationship changes")
		return err
	}

	added, removed := r.Counts()
	if _, err := bold.Fprintf(w, "Impact analysis: %d added, %d removed\n", added, removed); err != nil {
		return err
	}
	for _, c := range r.Changes {
		if _, err := cyan.Fprintf(w, "  %s\n", c.Category); err != nil {
			return err
		}
		for _, t := range c.Removed {
			if _, err := red.Fprintf(w, "    - %s\n", formatTuple(t)); err != nil {
				return err
			}
		}
		for _, t := range c.Added {
			if _, err := green.Fprintf(w, "    + %s\n", formatTuple(t)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatTuple(t Tuple) string {
	if t.Member == "" {
		return fmt.Sprintf("%s -> %s", t.Source, t.Target)
	}
	return fmt.Sprintf("%s -> %s (%s)", t.Source, t.Target, t.Member)
}
