package deskauth

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginSecondFactor     = "login_second_factor_required"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventRegister              = "register"
	auditEventRefresh               = "refresh"
	auditEventRefreshReuse          = "refresh_reuse_detected"
	auditEventLogout                = "logout"
	auditEventSessionRevoked        = "session_revoked"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetComplete = "password_reset_complete"
	auditEventTOTPSetup             = "totp_setup"
	auditEventTOTPEnabled           = "totp_enabled"
	auditEventTOTPDisabled          = "totp_disabled"
	auditEventBackupCodesRegen      = "backup_codes_regenerated"
)
