package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Episode is a decoded episode log.
type Episode struct {
	Header EpisodeHeader
	Ticks  []TickEntry
	Events []EventEntry
}

// ReadEpisode decodes every rotated file in an episode directory, oldest first.
func ReadEpisode(dir string) (Episode, error) {
	var ep Episode
	files, err := filepath.Glob(filepath.Join(dir, "ticks-*.jsonl.zst"))
	if err != nil {
		return ep, err
	}
	if len(files) == 0 {
		return ep, fmt.Errorf("no episode logs in %s", dir)
	}
	sort.Strings(files)

	seenHeader := false
	for _, path := range files {
		err := eachLine(path, func(line []byte) error {
			var probe struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(line, &probe); err != nil {
				return err
			}
			switch probe.Type {
			case EntryHeader:
				if seenHeader {
					return fmt.Errorf("duplicate header")
				}
				seenHeader = true
				return json.Unmarshal(line, &ep.Header)
			case EntryTick:
				var t TickEntry
				if err := json.Unmarshal(line, &t); err != nil {
					return err
				}
				ep.Ticks = append(ep.Ticks, t)
			case EntryEvent:
				var e EventEntry
				if err := json.Unmarshal(line, &e); err != nil {
					return err
				}
				ep.Events = append(ep.Events, e)
			}
			return nil
		})
		if err != nil {
			return ep, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if !seenHeader {
		return ep, fmt.Errorf("episode log %s has no header", dir)
	}
	return ep, nil
}

func eachLine(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
