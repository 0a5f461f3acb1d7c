package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyIdentity   = "identity"
	KeyName       = "mangled_name"
	KeyNode       = "node"
	KeyPath       = "path"
	KeyScheme     = "scheme"
	KeyTaskID     = "task_id"
	KeyTaskStatus = "task_status"
	KeyBudget     = "length_budget"
	KeyPattern    = "root_pattern"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Identity(full string) slog.Attr  { return slog.String(KeyIdentity, full) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func Node(n string) slog.Attr         { return slog.String(KeyNode, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Scheme(s string) slog.Attr       { return slog.String(KeyScheme, s) }
func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }
func TaskStatus(s string) slog.Attr   { return slog.String(KeyTaskStatus, s) }
func Budget(b int) slog.Attr          { return slog.Int(KeyBudget, b) }
func Pattern(p string) slog.Attr      { return slog.String(KeyPattern, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
