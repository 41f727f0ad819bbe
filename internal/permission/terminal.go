package permission

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TerminalPrompter asks on a terminal. Anything but y/yes denies.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p TerminalPrompter) Ask(respond func(granted bool)) {
	fmt.Fprint(p.Out, "Allow bankwatch to read your SMS inbox? [y/N]: ")
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		respond(false)
		return
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		respond(true)
	default:
		respond(false)
	}
}
