package deskauth

import internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"

// MetricID identifies an engine counter.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of every counter and the
// authenticate-latency buckets.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricLoginSuccess              = internalmetrics.LoginSuccess
	MetricLoginFailure              = internalmetrics.LoginFailure
	MetricLoginSecondFactorRequired = internalmetrics.LoginSecondFactorRequired
	MetricSecondFactorFailure       = internalmetrics.SecondFactorFailure
	MetricTOTPSuccess               = internalmetrics.TOTPSuccess
	MetricBackupCodeUsed            = internalmetrics.BackupCodeUsed
	MetricBackupCodeMigrated        = internalmetrics.BackupCodeMigrated
	MetricRefreshSuccess            = internalmetrics.RefreshSuccess
	MetricRefreshFailure            = internalmetrics.RefreshFailure
	MetricRefreshReuseDetected      = internalmetrics.RefreshReuseDetected
	MetricLogout                    = internalmetrics.Logout
	MetricLogoutAll                 = internalmetrics.LogoutAll
	MetricSessionRevoked            = internalmetrics.SessionRevoked
	MetricRegisterSuccess           = internalmetrics.RegisterSuccess
	MetricRegisterDuplicate         = internalmetrics.RegisterDuplicate
	MetricPasswordResetRequest      = internalmetrics.PasswordResetRequest
	MetricPasswordResetSuccess      = internalmetrics.PasswordResetSuccess
	MetricPasswordResetFailure      = internalmetrics.PasswordResetFailure
	MetricTOTPEnabled               = internalmetrics.TOTPEnabled
	MetricTOTPDisabled              = internalmetrics.TOTPDisabled
	MetricBackupCodesRegenerated    = internalmetrics.BackupCodesRegenerated
	MetricAuthenticateSuccess       = internalmetrics.AuthenticateSuccess
	MetricAuthenticateRejected      = internalmetrics.AuthenticateRejected
	MetricBlacklistHit              = internalmetrics.BlacklistHit
)
