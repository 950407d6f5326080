package db

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the journal's debug pages: live SQL, a database
// backup and a chart of recent motion.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(j.db.Path()), j.db.DB, &tailsql.DBOptions{
		Label: "Device journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(j.db.handleBackup))
	debug.Handle("motion-chart", "Acceleration and angular rate of recent motion events", http.HandlerFunc(j.handleMotionChart))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("journal-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		logf("backup download interrupted: %v", err)
	}
}

func (j *Journal) handleMotionChart(w http.ResponseWriter, r *http.Request) {
	limit := 600
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	bootID := j.bootID
	if r.URL.Query().Get("boot") == "all" {
		bootID = ""
	}

	points, err := j.db.MotionSeries(bootID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load motion events: %v", err), http.StatusInternalServerError)
		return
	}

	x := make([]string, 0, len(points))
	accel := make([]opts.LineData, 0, len(points))
	gyro := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, p.At.Format("15:04:05.000"))
		accel = append(accel, opts.LineData{Value: p.AccelMagnitude, Name: p.State})
		gyro = append(gyro, opts.LineData{Value: p.GyroMagnitude, Name: p.State})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Motion", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recent motion", Subtitle: fmt.Sprintf("boot=%s events=%d", bootLabel(bootID), len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "magnitude"}),
	)
	line.SetXAxis(x).
		AddSeries("accel (mg)", accel).
		AddSeries("gyro (dps)", gyro)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func bootLabel(id string) string {
	if id == "" {
		return "all"
	}
	return id
}
