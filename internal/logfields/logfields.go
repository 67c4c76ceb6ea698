package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyRoute      = "route"
	KeyPage       = "page"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyDir        = "dir"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyChangeType = "change_type"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Route(r string) slog.Attr         { return slog.String(KeyRoute, r) }
func Page(p string) slog.Attr          { return slog.String(KeyPage, p) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Dir(d string) slog.Attr           { return slog.String(KeyDir, d) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func ChangeType(t string) slog.Attr    { return slog.String(KeyChangeType, t) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
