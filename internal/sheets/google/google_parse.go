package google

import (
	"fmt"
	"strings"

	"kiptrack/internal/core"
)

// parseAllowances converts the allowance sheet into per-category tables.
// Rows with an unknown category or an unparseable nominal are skipped.
func parseAllowances(values [][]interface{}) (map[core.ProgramCategory]core.AllowanceTable, error) {
	out := make(map[core.ProgramCategory]core.AllowanceTable)
	if len(values) == 0 {
		return out, nil
	}

	headers := toStrings(values[0])
	colCategory := indexOf(headers, "Kategori", "Category")
	colCluster := indexOf(headers, "Klaster", "Cluster")
	colNominal := indexOf(headers, "Nominal")
	if colCategory == -1 || colCluster == -1 || colNominal == -1 {
		missing := make([]string, 0, 3)
		if colCategory == -1 {
			missing = append(missing, "Kategori")
		}
		if colCluster == -1 {
			missing = append(missing, "Klaster")
		}
		if colNominal == -1 {
			missing = append(missing, "Nominal")
		}
		return nil, fmt.Errorf("unexpected allowance header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		category, ok := parseCategory(safeGet(row, colCategory))
		if !ok {
			continue
		}
		cluster := safeGet(row, colCluster)
		if cluster == "" {
			continue
		}
		nominal, ok := parseRupiah(safeGet(row, colNominal))
		if !ok {
			continue
		}
		if out[category] == nil {
			out[category] = make(core.AllowanceTable)
		}
		out[category][cluster] = nominal
	}
	return out, nil
}

func parseCategory(s string) (core.ProgramCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medical", "kedokteran":
		return core.Medical, true
	case "non-medical", "non medical", "non-kedokteran", "non kedokteran":
		return core.NonMedical, true
	default:
		return "", false
	}
}
