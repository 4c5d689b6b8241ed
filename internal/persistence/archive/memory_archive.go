// Package archive keeps superseded long-term memory files, one generation
// per directory, so a bad episode can be rolled back.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridscout.ai/internal/persistence/snapshot"
)

type GenerationMeta struct {
	Generation int    `json:"generation"`
	AgentID    string `json:"agent_id,omitempty"`
	EpisodeID  string `json:"episode_id,omitempty"`
	Rooms      int    `json:"rooms"`
	Cells      int    `json:"cells"`
	Snapshot   string `json:"snapshot"`
	CreatedAt  string `json:"created_at"`
}

const genPrefix = "gen_"

// ArchiveMemory copies the memory file at snapPath into
// `<dir>/gen_<NNNN>/` and prunes all but the newest keep generations.
// A missing snapPath is not an error and reports archived=false.
func ArchiveMemory(dir, snapPath string, keep int) (gen int, archivedPath string, archived bool, err error) {
	hdr, err := snapshot.ReadHeader(snapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", false, nil
		}
		return 0, "", false, err
	}
	gens, err := Generations(dir)
	if err != nil {
		return 0, "", false, err
	}
	gen = 1
	if len(gens) > 0 {
		gen = gens[len(gens)-1] + 1
	}

	genDir := filepath.Join(dir, fmt.Sprintf("%s%04d", genPrefix, gen))
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(genDir, filepath.Base(snapPath))
	if err := copyFile(snapPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := GenerationMeta{
		Generation: gen,
		AgentID:    hdr.AgentID,
		EpisodeID:  hdr.EpisodeID,
		Rooms:      hdr.Rooms,
		Cells:      hdr.Cells,
		Snapshot:   filepath.Base(dst),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(genDir, "meta.json"), b, 0o644)
	}

	if keep > 0 {
		all := append(gens, gen)
		for _, g := range all[:max(0, len(all)-keep)] {
			_ = os.RemoveAll(filepath.Join(dir, fmt.Sprintf("%s%04d", genPrefix, g)))
		}
	}
	return gen, dst, true, nil
}

// Generations lists archived generation numbers, oldest first.
func Generations(dir string) ([]int, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), genPrefix))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Restore copies generation gen back over dst.
func Restore(dir string, gen int, dst string) error {
	src := filepath.Join(dir, fmt.Sprintf("%s%04d", genPrefix, gen), filepath.Base(dst))
	if _, err := snapshot.ReadHeader(src); err != nil {
		return fmt.Errorf("generation %d: %w", gen, err)
	}
	tmp := dst + ".tmp"
	if err := copyFile(src, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
