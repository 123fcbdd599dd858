package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildResultPath returns the object key for an archived query result,
// partitioned by the UTC day it was produced.
func BuildResultPath(prefix, resultID string, producedAt time.Time) (string, error) {
	prefix, err := resultPrefix(prefix)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(resultID, "result id"); err != nil {
		return "", err
	}

	return path.Join(prefix, datePartition(producedAt), resultID+".parquet"), nil
}

// BuildResultDayPrefix returns the key prefix holding every result archived on
// the UTC day of day.
func BuildResultDayPrefix(prefix string, day time.Time) (string, error) {
	prefix, err := resultPrefix(prefix)
	if err != nil {
		return "", err
	}
	return path.Join(prefix, datePartition(day)) + "/", nil
}

func datePartition(ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day())
}

func resultPrefix(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "results", nil
	}
	for _, part := range strings.Split(prefix, "/") {
		if err := validatePathComponent(part, "prefix"); err != nil {
			return "", err
		}
	}
	return prefix, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
