package db

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Boot struct {
	BootID    string    `json:"boot_id"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

type TransitionRecord struct {
	BootID  string    `json:"boot_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Message string    `json:"message,omitempty"`
	Cause   string    `json:"cause"`
	At      time.Time `json:"at"`
}

// MotionPoint is one journaled motion event.
type MotionPoint struct {
	State          string    `json:"state"`
	Heartbeat      bool      `json:"heartbeat"`
	AccelMagnitude float64   `json:"accel_mg"`
	GyroMagnitude  float64   `json:"gyro_dps"`
	TiltAngle      float64   `json:"tilt_deg"`
	At             time.Time `json:"at"`
}

// MotionSummary aggregates the motion events of one state.
type MotionSummary struct {
	State     string  `json:"state"`
	Count     int     `json:"count"`
	MeanAccel float64 `json:"mean_accel_mg"`
	MaxAccel  float64 `json:"max_accel_mg"`
	MeanGyro  float64 `json:"mean_gyro_dps"`
	MaxGyro   float64 `json:"max_gyro_dps"`
}

// Boots lists boots, newest first.
func (db *DB) Boots() ([]Boot, error) {
	rows, err := db.Query(`SELECT boot_id, started_at, version FROM boots ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boots []Boot
	for rows.Next() {
		var (
			b       Boot
			started float64
		)
		if err := rows.Scan(&b.BootID, &started, &b.Version); err != nil {
			return nil, err
		}
		b.StartedAt = fromUnixSeconds(started)
		boots = append(boots, b)
	}
	return boots, rows.Err()
}

// RecentTransitions returns up to n transitions across all boots, newest
// first.
func (db *DB) RecentTransitions(n int) ([]TransitionRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", n)
	}
	rows, err := db.Query(`SELECT boot_id, from_state, to_state, message, cause, recorded_at
		FROM transitions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var (
			t  TransitionRecord
			at float64
		)
		if err := rows.Scan(&t.BootID, &t.From, &t.To, &t.Message, &t.Cause, &at); err != nil {
			return nil, err
		}
		t.At = fromUnixSeconds(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

// MotionSeries returns the last n motion events of a boot in time order.
// An empty bootID selects every boot.
func (db *DB) MotionSeries(bootID string, n int) ([]MotionPoint, error) {
	if n <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", n)
	}
	rows, err := db.Query(`SELECT state, heartbeat, accel_mg, gyro_dps, tilt_deg, recorded_at
		FROM motion_events WHERE ? = '' OR boot_id = ?
		ORDER BY id DESC LIMIT ?`, bootID, bootID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MotionPoint
	for rows.Next() {
		var (
			p  MotionPoint
			at float64
		)
		if err := rows.Scan(&p.State, &p.Heartbeat, &p.AccelMagnitude, &p.GyroMagnitude, &p.TiltAngle, &at); err != nil {
			return nil, err
		}
		p.At = fromUnixSeconds(at)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// MotionSummaries groups a boot's motion events by state. An empty bootID
// selects every boot. States are returned in name order.
func (db *DB) MotionSummaries(bootID string) ([]MotionSummary, error) {
	rows, err := db.Query(`SELECT state, accel_mg, gyro_dps FROM motion_events
		WHERE ? = '' OR boot_id = ?`, bootID, bootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accel := map[string][]float64{}
	gyro := map[string][]float64{}
	for rows.Next() {
		var (
			state string
			a, g  float64
		)
		if err := rows.Scan(&state, &a, &g); err != nil {
			return nil, err
		}
		accel[state] = append(accel[state], a)
		gyro[state] = append(gyro[state], g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MotionSummary, 0, len(accel))
	for state, a := range accel {
		g := gyro[state]
		out = append(out, MotionSummary{
			State:     state,
			Count:     len(a),
			MeanAccel: stat.Mean(a, nil),
			MaxAccel:  floats.Max(a),
			MeanGyro:  stat.Mean(g, nil),
			MaxGyro:   floats.Max(g),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].State < out[k].State })
	return out, nil
}

// FaultCount returns how many faults a boot has recorded. An empty bootID
// counts every boot.
func (db *DB) FaultCount(bootID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM faults WHERE ? = '' OR boot_id = ?`, bootID, bootID).Scan(&n)
	return n, err
}
