package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"
)

// Reading is one row of the scada_logs table.
type Reading struct {
	Timestamp  time.Time
	Equipment  string
	MetricName string
	Value      float64
	ErrorCode  string
}

// metricRoute maps question keywords to the SQL filter that answers them.
type metricRoute struct {
	keywords  []string
	where     string
	aggregate bool
}

// Routes are tried in order; the first keyword hit wins.
var metricRoutes = []metricRoute{
	{keywords: []string{"pressure", "psi", "capper", "compressor", "bar", "leak"}, where: "metric_name = 'pressure_psi'"},
	{keywords: []string{"temperature", "temp", "celsius", "overheat", "boiler", "furnace", "chiller"}, where: "metric_name = 'temperature_celsius'"},
	{keywords: []string{"vibration", "shake", "hz", "unbalance", "resonance", "oscillation"}, where: "metric_name = 'vibration_hz'"},
	{keywords: []string{"load", "power", "grid", "electric", "kw", "average load", "main supply"}, where: "metric_name = 'load_kw'", aggregate: true},
	{keywords: []string{"rpm", "rotation", "overspeed", "underspeed", "shaft speed"}, where: "metric_name = 'rpm'"},
	{keywords: []string{"error", "anomaly", "fault", "issue", "warning", "alarm", "problem", "503", "504", "505"}, where: "error_code IS NOT NULL AND error_code != ''"},
}

var months = []string{"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december"}

const noDataMessage = "No data matched your query."

// SCADATool answers sensor questions from the plant telemetry database.
type SCADATool struct {
	DB *sql.DB
	// Explainer, when set, turns the raw rows into a short plain-language summary.
	Explainer llms.Model
}

func NewSCADATool(dbPath string, explainer llms.Model) (*SCADATool, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SCADATool{DB: db, Explainer: explainer}, nil
}

// EnsureSchema creates the telemetry table if it does not exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS scada_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		equipment TEXT,
		metric_name TEXT NOT NULL,
		value REAL,
		error_code TEXT
	);`)
	return err
}

// InsertReading appends one telemetry row.
func (s *SCADATool) InsertReading(ctx context.Context, r Reading) error {
	var code any
	if r.ErrorCode != "" {
		code = r.ErrorCode
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO scada_logs (timestamp, equipment, metric_name, value, error_code) VALUES (?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format("2006-01-02 15:04:05"), r.Equipment, r.MetricName, r.Value, code)
	return err
}

func (s *SCADATool) Close() error {
	return s.DB.Close()
}

func (s *SCADATool) Name() string {
	return "scada"
}

func (s *SCADATool) Description() string {
	return "Query live plant sensor history (pressure, temperature, vibration, load, rpm, error codes), optionally filtered by month."
}

func (s *SCADATool) Execute(ctx context.Context, input string) (string, error) {
	query, args, aggregate, err := BuildSCADAQuery(input)
	if err != nil {
		return "", err
	}

	var table string
	if aggregate {
		table, err = s.average(ctx, query, args)
	} else {
		table, err = s.rows(ctx, query, args)
	}
	if err != nil {
		return "", fmt.Errorf("sql query failed: %w", err)
	}
	if table == "" {
		return noDataMessage, nil
	}
	if s.Explainer == nil {
		return table, nil
	}

	explained, err := llms.GenerateFromSinglePrompt(ctx, s.Explainer,
		"You are a helpful diagnostics assistant. Analyze the SCADA data and explain it simply.\n\nExplain this data:\n\n"+table,
		llms.WithTemperature(0.3))
	if err != nil {
		// The rows are still a usable answer.
		return table, nil
	}
	return strings.TrimSpace(explained) + "\n\n" + table, nil
}

// BuildSCADAQuery routes a natural-language question to a parameterised query.
func BuildSCADAQuery(question string) (string, []any, bool, error) {
	q := strings.ToLower(question)
	var route *metricRoute
	for i := range metricRoutes {
		if containsAny(q, metricRoutes[i].keywords) {
			route = &metricRoutes[i]
			break
		}
	}
	if route == nil {
		return "", nil, false, fmt.Errorf("no sensor metric matches %q", question)
	}

	var sb strings.Builder
	if route.aggregate {
		sb.WriteString("SELECT AVG(value) AS avg_kw, COUNT(*) AS samples FROM scada_logs WHERE ")
	} else {
		sb.WriteString("SELECT timestamp, COALESCE(equipment, ''), metric_name, value, COALESCE(error_code, '') FROM scada_logs WHERE ")
	}
	sb.WriteString(route.where)

	var args []any
	if m := extractMonth(q); m != "" {
		sb.WriteString(" AND strftime('%m', timestamp) = ?")
		args = append(args, m)
	}
	if !route.aggregate {
		sb.WriteString(" ORDER BY timestamp DESC LIMIT 10")
	}
	return sb.String(), args, route.aggregate, nil
}

func (s *SCADATool) rows(ctx context.Context, query string, args []any) (string, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "timestamp\tequipment\tmetric\tvalue\terror_code")
	n := 0
	for rows.Next() {
		var ts, equipment, metric, code string
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &equipment, &metric, &value, &code); err != nil {
			return "", err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", ts, equipment, metric, value.Float64, code)
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	w.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (s *SCADATool) average(ctx context.Context, query string, args []any) (string, error) {
	var avg sql.NullFloat64
	var samples int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&avg, &samples); err != nil {
		return "", err
	}
	if !avg.Valid || samples == 0 {
		return "", nil
	}
	return fmt.Sprintf("avg_kw: %.2f (over %d samples)", avg.Float64, samples), nil
}

func extractMonth(q string) string {
	for i, name := range months {
		if strings.Contains(q, name) {
			return fmt.Sprintf("%02d", i+1)
		}
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
