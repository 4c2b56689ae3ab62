package usage

import (
	"strconv"
	"strings"
	"time"

	"github.com/digital-coe/agenthub/internal/model"
)

// Header aliases accepted in import files. The adoption deck export has
// drifted over time, so older column names map onto the canonical ones.
var headerAliases = map[string]string{
	"agent":      "agent_name",
	"start_date": "time_window_start",
	"end_date":   "time_window_end",
	"agent_slug": "raw_agent_slug",
}

// ParseCSV parses an adoption export into raw usage rows. The format is
// deliberately naive: lines split on newlines, fields split on commas, no
// quoting. A comma inside a field breaks the row, matching the upstream
// export which never quotes.
//
// Missing fields get defaults: account "Unknown", metric "unique_users",
// both window dates today (UTC). An unparseable value coerces to 0 rather
// than failing the import. Rows without an agent name are kept; they land
// in the unmatched queue for manual resolution.
func ParseCSV(data string) []model.RawUsageRow {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil
	}

	headers := make([]string, 0, 8)
	for _, h := range strings.Split(lines[0], ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[h]; ok {
			h = canonical
		}
		headers = append(headers, h)
	}

	today := time.Now().UTC().Format("2006-01-02")

	var rows []model.RawUsageRow
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		cells := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(fields) {
				cells[h] = strings.TrimSpace(fields[i])
			}
		}

		row := model.RawUsageRow{
			Account:         cells["account"],
			AgentName:       cells["agent_name"],
			Metric:          cells["metric"],
			TimeWindowStart: cells["time_window_start"],
			TimeWindowEnd:   cells["time_window_end"],
			DataSource:      cells["data_source"],
		}
		if row.Account == "" {
			row.Account = "Unknown"
		}
		if row.Metric == "" {
			row.Metric = "unique_users"
		}
		if row.TimeWindowStart == "" {
			row.TimeWindowStart = today
		}
		if row.TimeWindowEnd == "" {
			row.TimeWindowEnd = today
		}
		if v, err := strconv.ParseFloat(cells["value"], 64); err == nil {
			row.Value = v
		}
		if slug := cells["raw_agent_slug"]; slug != "" {
			row.RawAgentSlug = &slug
		}

		rows = append(rows, row)
	}
	return rows
}

func splitLines(data string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
