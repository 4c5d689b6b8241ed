package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gridscout.ai/internal/persistence/indexdb"
	"gridscout.ai/internal/session"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	episodeID := fs.String("episode", "", "episode id (optional; defaults to the latest)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "episodes"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = session.IndexPath(*dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path, indexdb.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runQuery(ctx, os.Stdout, idx, q, *episodeID, *limit); err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, w io.Writer, idx *indexdb.SQLiteIndex, q, episodeID string, limit int) error {
	if q == "episodes" {
		rows, err := idx.Episodes(ctx, limit)
		if err != nil {
			return err
		}
		return printJSONLines(w, rows)
	}

	if episodeID == "" {
		rows, err := idx.Episodes(ctx, 1)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no episodes indexed")
		}
		episodeID = rows[0].ID
	}

	switch q {
	case "legs":
		rows, err := idx.Legs(ctx, episodeID)
		if err != nil {
			return err
		}
		return printJSONLines(w, rows)
	case "errors":
		m, err := idx.PredictionErrorCounts(ctx, episodeID)
		if err != nil {
			return err
		}
		printCounts(w, m)
		return nil
	case "states":
		m, err := idx.StateHistogram(ctx, episodeID)
		if err != nil {
			return err
		}
		n, err := idx.TickCount(ctx, episodeID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "episode %s ticks=%d\n", episodeID, n)
		printCounts(w, m)
		return nil
	default:
		return fmt.Errorf("unknown query %q (episodes|legs|errors|states)", q)
	}
}

func printJSONLines[T any](w io.Writer, rows []T) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func printCounts(w io.Writer, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-20s %d\n", k, m[k])
	}
}
