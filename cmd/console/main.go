// Command console is a terminal observer for a running server: it renders
// the room, the agent's internal map and its drives, and sends typed phrases
// as commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gridscout.ai/internal/protocol"
	"gridscout.ai/internal/transport/observer"
)

func main() {
	var (
		url    = flag.String("url", "ws://127.0.0.1:8080/v1/observe", "observer websocket url")
		name   = flag.String("name", "console", "observer name")
		events = flag.Bool("events", true, "show narrated events")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c, welcome, err := observer.Dial(ctx, *url, protocol.SubscribeMsg{Name: *name, Events: *events, Render: true})
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer c.Close()

	p := tea.NewProgram(newModel(c, c.Frames(), welcome), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}
