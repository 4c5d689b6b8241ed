package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gridscout.ai/internal/persistence/archive"
	persistlog "gridscout.ai/internal/persistence/log"
	"gridscout.ai/internal/persistence/snapshot"
	"gridscout.ai/internal/session"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "forget":
			forgetCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "lexicon":
			lexiconCmd(os.Args[2:])
			return
		case "memory":
			memoryCmd(os.Args[2:])
			return
		case "restore":
			restoreCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "episodes"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		line := e.Name()
		if ep, err := persistlog.ReadEpisode(persistlog.EpisodeDir(*dataDir, e.Name())); err == nil {
			line = fmt.Sprintf("%s scenario=%s started=%s ticks=%d", e.Name(), ep.Header.Scenario, ep.Header.StartedAt, len(ep.Ticks))
		}
		fmt.Println(line)
	}
}

func memoryCmd(args []string) {
	fs := flag.NewFlagSet("memory", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	agentID := fs.String("agent", "scout", "agent id")
	path := fs.String("snapshot", "", "long-term memory file (optional; defaults to the agent's)")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		p = session.LongTermPath(*dataDir, *agentID)
	}
	if err := printMemory(os.Stdout, p); err != nil {
		fmt.Fprintln(os.Stderr, "memory:", err)
		os.Exit(1)
	}
	gens, err := archive.Generations(session.ArchiveDir(*dataDir, *agentID))
	if err == nil && len(gens) > 0 {
		fmt.Printf("archived generations: %v\n", gens)
	}
}

// restoreCmd rolls the agent's long-term memory back to an archived generation.
func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	agentID := fs.String("agent", "scout", "agent id")
	gen := fs.Int("gen", 0, "generation to restore (required)")
	_ = fs.Parse(args)

	if *gen <= 0 {
		fmt.Fprintln(os.Stderr, "missing -gen")
		os.Exit(2)
	}
	dst := session.LongTermPath(*dataDir, *agentID)
	if err := archive.Restore(session.ArchiveDir(*dataDir, *agentID), *gen, dst); err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}
	fmt.Printf("restored generation %d to %s\n", *gen, dst)
}

func printMemory(w io.Writer, path string) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	h := snap.Header
	fmt.Fprintf(w, "snapshot v%d agent=%s episode=%s written=%s rooms=%d cells=%d\n",
		h.Version, h.AgentID, h.EpisodeID, h.WrittenAt, h.Rooms, h.Cells)
	for _, r := range snap.Rooms {
		names := make([]string, 0, len(r.Found))
		for _, f := range r.Found {
			n := f.Name
			if f.Color != "" {
				n = f.Color + " " + n
			}
			names = append(names, fmt.Sprintf("%s@(%d,%d)", n, f.X, f.Y))
		}
		sort.Strings(names)
		fmt.Fprintf(w, "  room %s cells=%d objects=[%s]\n", r.ID, len(r.Cells), strings.Join(names, " "))
	}
	return nil
}

// forgetCmd drops rooms from long-term memory so the next visit starts from
// a blank map.
func forgetCmd(args []string) {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	agentID := fs.String("agent", "scout", "agent id")
	rooms := fs.String("rooms", "", "comma separated room ids (required; \"*\" forgets everything)")
	outPath := fs.String("out", "", "output snapshot path (optional; defaults to rewriting in place)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*rooms) == "" {
		fmt.Fprintln(os.Stderr, "missing -rooms")
		os.Exit(2)
	}
	in := session.LongTermPath(*dataDir, *agentID)
	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = in
	}
	n, err := forget(in, out, strings.Split(*rooms, ","))
	if err != nil {
		fmt.Fprintln(os.Stderr, "forget:", err)
		os.Exit(1)
	}
	fmt.Printf("forgot %d rooms; wrote %s\n", n, out)
}

func forget(in, out string, rooms []string) (int, error) {
	snap, err := snapshot.ReadSnapshot(in)
	if err != nil {
		return 0, err
	}
	ltm, err := snap.LongTerm()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rooms {
		r = strings.TrimSpace(r)
		if r == "*" {
			n += len(ltm)
			clear(ltm)
			break
		}
		if _, ok := ltm[r]; ok {
			delete(ltm, r)
			n++
		}
	}
	hdr := snap.Header
	hdr.Rooms, hdr.Cells, hdr.WrittenAt = 0, 0, ""
	return n, snapshot.WriteSnapshot(out, snapshot.FromLongTerm(ltm, hdr))
}
