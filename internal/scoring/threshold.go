package scoring

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"loanscore/internal/cfg"
	"loanscore/internal/common"
)

// ThresholdResolver returns the acceptance threshold for the active model.
type ThresholdResolver interface {
	Resolve(ctx context.Context) (float64, error)
	Policy() string
}

// FixedThreshold returns the same threshold for every request.
type FixedThreshold float64

// Resolve implements ThresholdResolver.
func (f FixedThreshold) Resolve(context.Context) (float64, error) {
	return float64(f), nil
}

// Policy implements ThresholdResolver.
func (f FixedThreshold) Policy() string { return common.ThresholdPolicyFixed }

// LookupThreshold reads the threshold for Identity from a mapping file of
// "<model-identity> : <threshold>" lines. The file is read on every call so
// edits take effect on the next request.
type LookupThreshold struct {
	Path     string
	Identity string
}

// Resolve implements ThresholdResolver.
func (l LookupThreshold) Resolve(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.Open(filepath.Clean(l.Path))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrThresholdNotFound, err)
	}
	defer f.Close()

	return ParseThreshold(f, l.Identity)
}

// Policy implements ThresholdResolver.
func (l LookupThreshold) Policy() string { return common.ThresholdPolicyLookup }

// ThresholdEntry is one line of a mapping file.
type ThresholdEntry struct {
	Identity  string
	Threshold float64
}

// ParseThreshold scans a mapping for identity and returns the first match.
func ParseThreshold(r io.Reader, identity string) (float64, error) {
	if identity == "" {
		return 0, fmt.Errorf("%w: empty model identity", common.ErrThresholdNotFound)
	}
	var (
		found bool
		value float64
	)
	err := scanThresholds(r, func(line int, id, raw string) (bool, error) {
		if id != identity {
			return true, nil
		}
		v, err := parseThresholdValue(raw)
		if err != nil {
			return false, fmt.Errorf("line %d: %w", line, err)
		}
		found, value = true, v
		return false, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrThresholdNotFound, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: no entry for model %q", common.ErrThresholdNotFound, identity)
	}
	return value, nil
}

// ReadThresholds returns every entry of a mapping file in file order.
func ReadThresholds(path string) ([]ThresholdEntry, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ThresholdEntry
	err = scanThresholds(f, func(line int, id, raw string) (bool, error) {
		v, err := parseThresholdValue(raw)
		if err != nil {
			return false, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, ThresholdEntry{Identity: id, Threshold: v})
		return true, nil
	})
	return entries, err
}

// WriteThreshold sets identity's threshold in the mapping file, replacing
// the first matching line or appending a new one. The file is replaced
// atomically.
func WriteThreshold(path, identity string, value float64) error {
	if value < common.MinThreshold || value > common.MaxThreshold {
		return fmt.Errorf("threshold must be between 0 and 1, got %v", value)
	}
	if identity == "" || strings.ContainsAny(identity, "\n") {
		return fmt.Errorf("invalid model identity %q", identity)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read mapping: %w", err)
	}

	entry := fmt.Sprintf("%s : %s", identity, strconv.FormatFloat(value, 'f', -1, 64))
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}

	replaced := false
	for i, line := range lines {
		if id, _, ok := splitEntry(line); ok && id == identity {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, entry)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".thresholds-*")
	if err != nil {
		return fmt.Errorf("create temp mapping: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp mapping: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp mapping: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// scanThresholds calls fn for every entry line until fn returns false.
func scanThresholds(r io.Reader, fn func(line int, identity, raw string) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		id, raw, ok := splitEntry(scanner.Text())
		if !ok {
			continue
		}
		more, err := fn(line, id, raw)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return scanner.Err()
}

// splitEntry splits "<identity> : <value>" on the last colon. Blank lines,
// comments and lines without a colon are not entries.
func splitEntry(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	i := strings.LastIndex(line, ":")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func parseThresholdValue(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q", raw)
	}
	if v < common.MinThreshold || v > common.MaxThreshold {
		return 0, fmt.Errorf("threshold %v outside [0, 1]", v)
	}
	return v, nil
}

// NewThresholdResolver builds the configured policy and probes it once.
func NewThresholdResolver(ctx context.Context, settings cfg.Settings) (ThresholdResolver, error) {
	var resolver ThresholdResolver
	switch settings.ThresholdPolicy {
	case common.ThresholdPolicyFixed:
		resolver = FixedThreshold(settings.Threshold)
	case common.ThresholdPolicyLookup:
		resolver = LookupThreshold{Path: settings.ThresholdFile, Identity: settings.ModelID}
	default:
		return nil, fmt.Errorf("%w: unknown threshold policy %q", common.ErrStartupLoad, settings.ThresholdPolicy)
	}

	t, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStartupLoad, err)
	}

	log.Info().
		Str("policy", resolver.Policy()).
		Str("model", settings.ModelID).
		Float64("threshold", t).
		Msg("Threshold resolver ready")

	return resolver, nil
}
