package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"gridscout.ai/internal/session"
	"gridscout.ai/internal/sim/runtime"
)

func metricsHandler(rt *runtime.Runtime, sess *session.Session, dataDir string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := rt.State()
		rs := rt.Stats()
		ep := st.EpisodeID

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gridscout_tick Current episode tick.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_tick gauge\n")
		fmt.Fprintf(rw, "gridscout_tick{episode=%q} %d\n", ep, st.Tick)
		fmt.Fprintf(rw, "# HELP gridscout_leg Index of the leg being run.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_leg gauge\n")
		fmt.Fprintf(rw, "gridscout_leg{episode=%q,room=%q} %d\n", ep, st.Room, st.Leg)
		fmt.Fprintf(rw, "# HELP gridscout_steps Primitives executed in the current leg.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_steps gauge\n")
		fmt.Fprintf(rw, "gridscout_steps{episode=%q} %d\n", ep, st.Steps)
		fmt.Fprintf(rw, "# HELP gridscout_known_cells Cells in the agent's internal map.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_known_cells gauge\n")
		fmt.Fprintf(rw, "gridscout_known_cells{episode=%q} %d\n", ep, st.Known)
		fmt.Fprintf(rw, "# HELP gridscout_state Controller state (1 for the active state).\n")
		fmt.Fprintf(rw, "# TYPE gridscout_state gauge\n")
		fmt.Fprintf(rw, "gridscout_state{episode=%q,state=%q} 1\n", ep, st.State)
		for k, v := range st.Drives {
			fmt.Fprintf(rw, "gridscout_drive{episode=%q,drive=%q} %.6f\n", ep, k, v)
		}
		fmt.Fprintf(rw, "# HELP gridscout_pending_commands Buffered manual commands.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_pending_commands gauge\n")
		fmt.Fprintf(rw, "gridscout_pending_commands %d\n", rs.Pending)
		fmt.Fprintf(rw, "# HELP gridscout_observers Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_observers gauge\n")
		fmt.Fprintf(rw, "gridscout_observers %d\n", rs.Observers)
		fmt.Fprintf(rw, "# HELP gridscout_observer_dropped_frames Frames dropped for slow connected observers.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_observer_dropped_frames counter\n")
		fmt.Fprintf(rw, "gridscout_observer_dropped_frames %d\n", rs.Dropped)

		if idx := sess.Index(); idx != nil {
			qs := idx.Stats()
			fmt.Fprintf(rw, "# HELP gridscout_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE gridscout_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "gridscout_index_queue_depth %d\n", qs.QueueDepth)
			fmt.Fprintf(rw, "gridscout_index_queue_capacity %d\n", qs.QueueCapacity)
			fmt.Fprintf(rw, "# HELP gridscout_index_dropped_total Rows dropped because the index queue was full.\n")
			fmt.Fprintf(rw, "# TYPE gridscout_index_dropped_total counter\n")
			fmt.Fprintf(rw, "gridscout_index_dropped_total{kind=%q} %d\n", "tick", qs.DropTickTotal)
			fmt.Fprintf(rw, "gridscout_index_dropped_total{kind=%q} %d\n", "event", qs.DropEventTotal)
			fmt.Fprintf(rw, "gridscout_index_dropped_total{kind=%q} %d\n", "episode", qs.DropEpisodeTotal)
		}

		writeHostMetrics(rw, dataDir)
	}
}

// writeHostMetrics reports host gauges; a probe that fails is skipped.
func writeHostMetrics(rw http.ResponseWriter, dataDir string) {
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		fmt.Fprintf(rw, "# HELP gridscout_host_cpu_percent Host CPU utilisation.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_host_cpu_percent gauge\n")
		fmt.Fprintf(rw, "gridscout_host_cpu_percent %.2f\n", pct[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(rw, "# HELP gridscout_host_memory_used_percent Host memory utilisation.\n")
		fmt.Fprintf(rw, "# TYPE gridscout_host_memory_used_percent gauge\n")
		fmt.Fprintf(rw, "gridscout_host_memory_used_percent %.2f\n", vm.UsedPercent)
	}
	if _, err := os.Stat(dataDir); err == nil {
		if du, err := disk.Usage(dataDir); err == nil {
			fmt.Fprintf(rw, "# HELP gridscout_data_disk_free_bytes Free space on the data volume.\n")
			fmt.Fprintf(rw, "# TYPE gridscout_data_disk_free_bytes gauge\n")
			fmt.Fprintf(rw, "gridscout_data_disk_free_bytes %d\n", du.Free)
		}
	}
}
