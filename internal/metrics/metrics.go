package metrics

import (
	"sync/atomic"
	"time"
)

const cacheLineSize = 64

// MetricID indexes a counter.
type MetricID uint16

const (
	LoginSuccess MetricID = iota
	LoginFailure
	LoginSecondFactorRequired
	SecondFactorFailure
	TOTPSuccess
	BackupCodeUsed
	BackupCodeMigrated
	RefreshSuccess
	RefreshFailure
	RefreshReuseDetected
	Logout
	LogoutAll
	SessionRevoked
	RegisterSuccess
	RegisterDuplicate
	PasswordResetRequest
	PasswordResetSuccess
	PasswordResetFailure
	TOTPEnabled
	TOTPDisabled
	BackupCodesRegenerated
	AuthenticateSuccess
	AuthenticateRejected
	BlacklistHit
	AuthenticateLatency

	MetricIDCount
)

// Def names a metric for exporters.
type Def struct {
	ID   MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []Def{
	{LoginSuccess, "deskauth_login_success_total", "Fully authenticated logins."},
	{LoginFailure, "deskauth_login_failure_total", "Rejected login attempts."},
	{LoginSecondFactorRequired, "deskauth_login_second_factor_required_total", "Logins paused for a one-time code."},
	{SecondFactorFailure, "deskauth_second_factor_failure_total", "One-time codes that matched neither TOTP nor a backup code."},
	{TOTPSuccess, "deskauth_totp_success_total", "Logins completed with a TOTP code."},
	{BackupCodeUsed, "deskauth_backup_code_used_total", "Logins completed with a backup code."},
	{BackupCodeMigrated, "deskauth_backup_code_migrated_total", "Legacy plaintext backup-code batches rewritten hashed."},
	{RefreshSuccess, "deskauth_refresh_success_total", "Successful refresh-token rotations."},
	{RefreshFailure, "deskauth_refresh_failure_total", "Rejected refresh tokens."},
	{RefreshReuseDetected, "deskauth_refresh_reuse_detected_total", "Revoked refresh tokens presented again."},
	{Logout, "deskauth_logout_total", "Single-device logouts."},
	{LogoutAll, "deskauth_logout_all_total", "All-device logouts."},
	{SessionRevoked, "deskauth_session_revoked_total", "Sessions revoked from the session list."},
	{RegisterSuccess, "deskauth_register_success_total", "Created accounts."},
	{RegisterDuplicate, "deskauth_register_duplicate_total", "Registrations rejected as duplicate."},
	{PasswordResetRequest, "deskauth_password_reset_request_total", "Password reset requests."},
	{PasswordResetSuccess, "deskauth_password_reset_success_total", "Completed password resets."},
	{PasswordResetFailure, "deskauth_password_reset_failure_total", "Rejected password reset tokens."},
	{TOTPEnabled, "deskauth_totp_enabled_total", "Two-factor enrolments completed."},
	{TOTPDisabled, "deskauth_totp_disabled_total", "Two-factor enrolments removed."},
	{BackupCodesRegenerated, "deskauth_backup_codes_regenerated_total", "Backup-code batches regenerated."},
	{AuthenticateSuccess, "deskauth_authenticate_success_total", "Access tokens accepted."},
	{AuthenticateRejected, "deskauth_authenticate_rejected_total", "Access tokens rejected."},
	{BlacklistHit, "deskauth_blacklist_hit_total", "Access tokens rejected by the revocation registry."},
}

// HistogramDef describes the latency histogram.
var HistogramDef = Def{AuthenticateLatency, "deskauth_authenticate_latency_seconds", "Authenticate latency."}

// HistogramBounds are the upper bounds of the histogram buckets. The last bucket is +Inf.
var HistogramBounds = []string{"0.001", "0.005", "0.01", "0.025", "0.05", "0.1", "0.5", "+Inf"}

var bucketLimits = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
}

const bucketCount = len(bucketLimits) + 1

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is safe for concurrent use. A nil *Metrics is a no-op.
type Metrics struct {
	counters [MetricIDCount]paddedCounter
	buckets  [bucketCount]paddedCounter
}

// Snapshot is a point-in-time copy. Latency holds non-cumulative bucket counts.
type Snapshot struct {
	Counters map[MetricID]uint64
	Latency  []uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records an authenticate duration.
func (m *Metrics) Observe(d time.Duration) {
	if m == nil {
		return
	}
	i := 0
	for i < len(bucketLimits) && d > bucketLimits[i] {
		i++
	}
	atomic.AddUint64(&m.buckets[i].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Counters: make(map[MetricID]uint64, int(MetricIDCount)),
		Latency:  make([]uint64, bucketCount),
	}
	if m == nil {
		return s
	}
	for _, def := range CounterDefs {
		s.Counters[def.ID] = atomic.LoadUint64(&m.counters[def.ID].value)
	}
	for i := range s.Latency {
		s.Latency[i] = atomic.LoadUint64(&m.buckets[i].value)
	}
	return s
}

// BucketUpperBounds returns the finite bucket bounds in seconds.
func BucketUpperBounds() []float64 {
	out := make([]float64, len(bucketLimits))
	for i, d := range bucketLimits {
		out[i] = d.Seconds()
	}
	return out
}

// Cumulative converts non-cumulative bucket counts to the running totals exporters publish.
func Cumulative(buckets []uint64) []uint64 {
	out := make([]uint64, len(buckets))
	var sum uint64
	for i, v := range buckets {
		sum += v
		out[i] = sum
	}
	return out
}
