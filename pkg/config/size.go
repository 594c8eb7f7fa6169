package config

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DataSize is a byte count that reads "64MB" style strings or plain numbers
// from JSON
type DataSize int64

const (
	KiB DataSize = 1 << 10
	MiB DataSize = 1 << 20
	GiB DataSize = 1 << 30
)

var dataSizePattern = regexp.MustCompile(`^([\d.]+)\s*([A-Za-z]+)$`)

// ParseDataSize parses sizes like "512MB", "1.5GiB" or "1024". KB/MB/GB are
// decimal; K/M/G and the IEC KiB/MiB/GiB forms are binary.
func ParseDataSize(s string) (DataSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %s", s)
		}
		return DataSize(n), nil
	}

	m := dataSizePattern.FindStringSubmatch(s)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid size format: %s (expected something like '64MB')", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %s", m[1])
	}

	var multiplier int64
	switch strings.ToUpper(m[2]) {
	case "B":
		multiplier = 1
	case "KB":
		multiplier = 1000
	case "MB":
		multiplier = 1000 * 1000
	case "GB":
		multiplier = 1000 * 1000 * 1000
	case "K", "KIB":
		multiplier = int64(KiB)
	case "M", "MIB":
		multiplier = int64(MiB)
	case "G", "GIB":
		multiplier = int64(GiB)
	default:
		return 0, fmt.Errorf("unknown unit: %s", m[2])
	}

	bytes := value * float64(multiplier)
	if bytes < 0 || bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("size overflow: %s", s)
	}
	return DataSize(bytes), nil
}

// String formats the size with binary units
func (d DataSize) String() string {
	switch {
	case d >= GiB:
		return formatUnit(d, GiB, "GiB")
	case d >= MiB:
		return formatUnit(d, MiB, "MiB")
	case d >= KiB:
		return formatUnit(d, KiB, "KiB")
	default:
		return fmt.Sprintf("%dB", int64(d))
	}
}

func formatUnit(d, unit DataSize, suffix string) string {
	if d%unit == 0 {
		return fmt.Sprintf("%d%s", d/unit, suffix)
	}
	return fmt.Sprintf("%.1f%s", float64(d)/float64(unit), suffix)
}

func (d DataSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DataSize) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		if value < 0 || value >= math.MaxInt64 {
			return fmt.Errorf("size out of range: %v", value)
		}
		*d = DataSize(value)
	case string:
		parsed, err := ParseDataSize(value)
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("size must be a number or string, got %T", v)
	}
	return nil
}
