package lifecycle

import "github.com/helios/lifecycle/pkg/model"

const (
	StepValidateConfig        = "validate_config"
	StepCreateIdentityAccount = "create_identity_account"
	StepApplyLicense          = "apply_license"
	StepAddToGroups           = "add_to_groups"
	StepGrantDriveAccess      = "grant_drive_access"
	StepSubscribeCalendars    = "subscribe_calendars"
	StepApplySignature        = "apply_signature"
	StepSendWelcomeEmail      = "send_welcome_email"
	StepRemoveFromGroups      = "remove_from_groups"
	StepRevokeOAuthTokens     = "revoke_oauth_tokens"
	StepRevokeAppPasswords    = "revoke_app_passwords"
	StepSignOutDevices        = "sign_out_devices"
	StepResetPassword         = "reset_password"
	StepDriveDisposition      = "drive_disposition"
	StepEmailDisposition      = "email_disposition"
	StepCalendarDisposition   = "calendar_disposition"
	StepAccountDisposition    = "account_disposition"
	StepSuspendAccount        = "suspend_account"
	StepUnsuspendAccount      = "unsuspend_account"
	StepTransferData          = "transfer_data"
	StepDeleteAccount         = "delete_account"
	StepRestoreAccount        = "restore_account"
	StepSendNotifications     = "send_notifications"
	StepFinalize              = "finalize"
)

// Step is one entry of a catalog. A nil Enabled means the step always runs.
type Step struct {
	Name    string
	Enabled func(ActionConfig) bool
}

func (s Step) enabledFor(cfg ActionConfig) bool {
	return s.Enabled == nil || s.Enabled(cfg)
}

// Catalog is the fixed, ordered step list of one action type. It always
// starts with validate_config and ends with finalize.
type Catalog []Step

func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

func when[C any](pred func(*C) bool) func(ActionConfig) bool {
	return func(cfg ActionConfig) bool {
		typed, ok := any(cfg).(*C)
		return ok && pred(typed)
	}
}

func hasRecipients(cfg ActionConfig) bool {
	r, ok := cfg.(interface{ Recipients() []string })
	return ok && len(r.Recipients()) > 0
}

func notKeep(action string) bool {
	return action != "" && action != DispositionKeep
}

var (
	validateStep = Step{Name: StepValidateConfig}
	finalizeStep = Step{Name: StepFinalize}
	notifyStep   = Step{Name: StepSendNotifications, Enabled: hasRecipients}
)

var catalogs = map[model.ActionType]Catalog{
	model.ActionOnboard: {
		validateStep,
		{Name: StepCreateIdentityAccount, Enabled: when(func(c *OnboardingConfig) bool { return c.CreateAccount })},
		{Name: StepApplyLicense, Enabled: when(func(c *OnboardingConfig) bool { return c.LicenseSKU != "" })},
		{Name: StepAddToGroups, Enabled: when(func(c *OnboardingConfig) bool { return len(c.Groups) > 0 })},
		{Name: StepGrantDriveAccess, Enabled: when(func(c *OnboardingConfig) bool { return len(c.SharedDrives) > 0 })},
		{Name: StepSubscribeCalendars, Enabled: when(func(c *OnboardingConfig) bool { return len(c.Calendars) > 0 })},
		{Name: StepApplySignature, Enabled: when(func(c *OnboardingConfig) bool { return c.ApplySignature })},
		{Name: StepSendWelcomeEmail, Enabled: when(func(c *OnboardingConfig) bool { return c.SendWelcomeEmail })},
		finalizeStep,
	},
	model.ActionOffboard: {
		validateStep,
		{Name: StepRemoveFromGroups, Enabled: when(func(c *OffboardingConfig) bool { return c.RemoveFromGroups })},
		{Name: StepRevokeOAuthTokens, Enabled: when(func(c *OffboardingConfig) bool { return c.RevokeOAuthTokens })},
		{Name: StepRevokeAppPasswords, Enabled: when(func(c *OffboardingConfig) bool { return c.RevokeAppPasswords })},
		{Name: StepSignOutDevices, Enabled: when(func(c *OffboardingConfig) bool { return c.SignOutDevices })},
		{Name: StepResetPassword, Enabled: when(func(c *OffboardingConfig) bool { return c.ResetPassword })},
		{Name: StepDriveDisposition, Enabled: when(func(c *OffboardingConfig) bool { return notKeep(c.DriveAction) })},
		{Name: StepEmailDisposition, Enabled: when(func(c *OffboardingConfig) bool { return notKeep(c.EmailAction) })},
		{Name: StepCalendarDisposition, Enabled: when(func(c *OffboardingConfig) bool { return notKeep(c.CalendarAction) })},
		{Name: StepAccountDisposition, Enabled: when(func(c *OffboardingConfig) bool { return notKeep(c.AccountAction) })},
		notifyStep,
		finalizeStep,
	},
	model.ActionSuspend: {
		validateStep,
		{Name: StepSuspendAccount},
		{Name: StepSignOutDevices, Enabled: when(func(c *SuspendConfig) bool { return c.SignOutDevices })},
		{Name: StepRevokeOAuthTokens, Enabled: when(func(c *SuspendConfig) bool { return c.RevokeOAuthTokens })},
		notifyStep,
		finalizeStep,
	},
	model.ActionUnsuspend: {
		validateStep,
		{Name: StepUnsuspendAccount},
		{Name: StepResetPassword, Enabled: when(func(c *UnsuspendConfig) bool { return c.ResetPassword })},
		notifyStep,
		finalizeStep,
	},
	model.ActionDelete: {
		validateStep,
		{Name: StepTransferData, Enabled: when(func(c *DeleteConfig) bool { return c.TransferDataTo != "" })},
		{Name: StepDeleteAccount},
		notifyStep,
		finalizeStep,
	},
	model.ActionRestore: {
		validateStep,
		{Name: StepRestoreAccount},
		notifyStep,
		finalizeStep,
	},
}

// CatalogFor returns the step catalog of t.
func CatalogFor(t model.ActionType) (Catalog, bool) {
	c, ok := catalogs[t]
	return c, ok
}
