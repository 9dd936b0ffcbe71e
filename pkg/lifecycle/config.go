package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/model"
)

// ActionConfig is the typed, validated configuration of one action type.
type ActionConfig interface {
	Validate() error
}

// TemplateSource supplies organization template defaults for an action type.
type TemplateSource interface {
	TemplateDefaults(ctx context.Context, organizationID, templateID uuid.UUID, actionType model.ActionType) (model.JSONB, error)
}

// Notifications is shared by every config that ends with send_notifications.
type Notifications struct {
	NotifyRecipients []string `json:"notify_recipients,omitempty"`
}

func (n Notifications) Recipients() []string {
	return n.NotifyRecipients
}

func (n Notifications) validate() error {
	return validateEmails("notify_recipients", n.NotifyRecipients)
}

type OnboardingConfig struct {
	CreateAccount       bool     `json:"create_account"`
	OrgUnitPath         string   `json:"org_unit_path,omitempty"`
	LicenseSKU          string   `json:"license_sku,omitempty"`
	Groups              []string `json:"groups,omitempty"`
	SharedDrives        []string `json:"shared_drives,omitempty"`
	Calendars           []string `json:"calendars,omitempty"`
	ApplySignature      bool     `json:"apply_signature"`
	SignatureTemplateID string   `json:"signature_template_id,omitempty"`
	SendWelcomeEmail    bool     `json:"send_welcome_email"`
	ManagerEmail        string   `json:"manager_email,omitempty"`
}

func (c *OnboardingConfig) Validate() error {
	if c.OrgUnitPath != "" && !strings.HasPrefix(c.OrgUnitPath, "/") {
		return ValidationError("org_unit_path must start with /")
	}
	if c.ApplySignature && strings.TrimSpace(c.SignatureTemplateID) == "" {
		return ValidationError("signature_template_id is required when apply_signature is set")
	}
	if c.ManagerEmail != "" && !looksLikeEmail(c.ManagerEmail) {
		return ValidationError("manager_email is not a valid address")
	}
	if err := validateEmails("groups", c.Groups); err != nil {
		return err
	}
	if err := validateNonBlank("shared_drives", c.SharedDrives); err != nil {
		return err
	}
	return validateNonBlank("calendars", c.Calendars)
}

const (
	DispositionKeep     = "keep"
	DispositionTransfer = "transfer"
	DispositionDelete   = "delete"
	DispositionForward  = "forward"
	DispositionDelegate = "delegate"
	DispositionSuspend  = "suspend"
	DispositionArchive  = "archive"
)

type OffboardingConfig struct {
	RemoveFromGroups   bool   `json:"remove_from_groups"`
	RevokeOAuthTokens  bool   `json:"revoke_oauth_tokens"`
	RevokeAppPasswords bool   `json:"revoke_app_passwords"`
	SignOutDevices     bool   `json:"sign_out_devices"`
	ResetPassword      bool   `json:"reset_password"`
	DriveAction        string `json:"drive_action"`
	DriveTransferTo    string `json:"drive_transfer_to,omitempty"`
	EmailAction        string `json:"email_action"`
	EmailForwardTo     string `json:"email_forward_to,omitempty"`
	CalendarAction     string `json:"calendar_action"`
	CalendarTransferTo string `json:"calendar_transfer_to,omitempty"`
	AccountAction      string `json:"account_action"`
	Notifications
}

func (c *OffboardingConfig) Validate() error {
	if err := validateDisposition("drive_action", c.DriveAction, c.DriveTransferTo,
		DispositionKeep, DispositionTransfer, DispositionDelete); err != nil {
		return err
	}
	if err := validateDisposition("email_action", c.EmailAction, c.EmailForwardTo,
		DispositionKeep, DispositionForward, DispositionDelegate, DispositionArchive); err != nil {
		return err
	}
	if err := validateDisposition("calendar_action", c.CalendarAction, c.CalendarTransferTo,
		DispositionKeep, DispositionTransfer, DispositionDelete); err != nil {
		return err
	}
	if err := validateDisposition("account_action", c.AccountAction, "",
		DispositionKeep, DispositionSuspend, DispositionDelete, DispositionArchive); err != nil {
		return err
	}
	return c.Notifications.validate()
}

type SuspendConfig struct {
	Reason            string `json:"reason,omitempty"`
	SignOutDevices    bool   `json:"sign_out_devices"`
	RevokeOAuthTokens bool   `json:"revoke_oauth_tokens"`
	Notifications
}

func (c *SuspendConfig) Validate() error {
	return c.Notifications.validate()
}

type UnsuspendConfig struct {
	ResetPassword bool `json:"reset_password"`
	Notifications
}

func (c *UnsuspendConfig) Validate() error {
	return c.Notifications.validate()
}

type DeleteConfig struct {
	TransferDataTo string `json:"transfer_data_to,omitempty"`
	Notifications
}

func (c *DeleteConfig) Validate() error {
	if c.TransferDataTo != "" && !looksLikeEmail(c.TransferDataTo) {
		return ValidationError("transfer_data_to is not a valid address")
	}
	return c.Notifications.validate()
}

type RestoreConfig struct {
	Notifications
}

func (c *RestoreConfig) Validate() error {
	return c.Notifications.validate()
}

// DefaultConfig returns the built-in defaults for t, or nil for an unknown type.
func DefaultConfig(t model.ActionType) ActionConfig {
	switch t {
	case model.ActionOnboard:
		return &OnboardingConfig{CreateAccount: true, SendWelcomeEmail: true}
	case model.ActionOffboard:
		return &OffboardingConfig{
			RemoveFromGroups:   true,
			RevokeOAuthTokens:  true,
			RevokeAppPasswords: true,
			SignOutDevices:     true,
			ResetPassword:      true,
			DriveAction:        DispositionKeep,
			EmailAction:        DispositionKeep,
			CalendarAction:     DispositionKeep,
			AccountAction:      DispositionSuspend,
		}
	case model.ActionSuspend:
		return &SuspendConfig{SignOutDevices: true, RevokeOAuthTokens: true}
	case model.ActionUnsuspend:
		return &UnsuspendConfig{}
	case model.ActionDelete:
		return &DeleteConfig{}
	case model.ActionRestore:
		return &RestoreConfig{}
	default:
		return nil
	}
}

// MergeLayers merges top-level keys shallowly; later layers win.
func MergeLayers(layers ...model.JSONB) model.JSONB {
	merged := model.JSONB{}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// DecodeConfig decodes raw onto the defaults of t and validates the result.
func DecodeConfig(t model.ActionType, raw model.JSONB) (ActionConfig, error) {
	cfg := DefaultConfig(t)
	if cfg == nil {
		return nil, ValidationError(fmt.Sprintf("unknown action type %q", t))
	}
	if len(raw) > 0 {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, ValidationError(fmt.Sprintf("invalid %s configuration: %v", t, err))
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, ValidationError(fmt.Sprintf("invalid %s configuration: %v", t, err))
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveConfig layers template defaults, actionConfig and configOverrides
// over the built-in defaults of the action's type.
func ResolveConfig(ctx context.Context, templates TemplateSource, action *model.ScheduledAction) (ActionConfig, error) {
	var defaults model.JSONB
	if templates != nil && action.TemplateID != nil {
		loaded, err := templates.TemplateDefaults(ctx, action.OrganizationID, *action.TemplateID, action.ActionType)
		if err != nil {
			return nil, InfrastructureError("load template defaults", err)
		}
		defaults = loaded
	}
	return DecodeConfig(action.ActionType, MergeLayers(defaults, action.ActionConfig, action.ConfigOverrides))
}

// ConfigMap renders cfg as the JSON object forwarded to the provider.
func ConfigMap(cfg ActionConfig) model.JSONB {
	out := model.JSONB{}
	data, err := json.Marshal(cfg)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}

// validateTarget checks the identity fields the action type needs.
func validateTarget(action *model.ScheduledAction) error {
	if action.ActionType == model.ActionOnboard {
		switch {
		case strings.TrimSpace(action.TargetEmail) == "":
			return ValidationError("targetEmail is required for onboard actions")
		case strings.TrimSpace(action.TargetFirstName) == "":
			return ValidationError("targetFirstName is required for onboard actions")
		case strings.TrimSpace(action.TargetLastName) == "":
			return ValidationError("targetLastName is required for onboard actions")
		}
		if !looksLikeEmail(action.TargetEmail) {
			return ValidationError("targetEmail is not a valid address")
		}
		return nil
	}
	if action.UserID == nil && strings.TrimSpace(action.TargetEmail) == "" {
		return ValidationError(fmt.Sprintf("userId or targetEmail is required for %s actions", action.ActionType))
	}
	return nil
}

func validateDisposition(field, value, target string, allowed ...string) error {
	for _, a := range allowed {
		if value != a {
			continue
		}
		needsTarget := value == DispositionTransfer || value == DispositionForward || value == DispositionDelegate
		if needsTarget && !looksLikeEmail(target) {
			return ValidationError(fmt.Sprintf("%s %q requires a target address", field, value))
		}
		return nil
	}
	return ValidationError(fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
}

func validateEmails(field string, values []string) error {
	for _, v := range values {
		if !looksLikeEmail(v) {
			return ValidationError(fmt.Sprintf("%s contains invalid address %q", field, v))
		}
	}
	return nil
}

func validateNonBlank(field string, values []string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return ValidationError(fmt.Sprintf("%s contains an empty entry", field))
		}
	}
	return nil
}

func looksLikeEmail(v string) bool {
	at := strings.Index(v, "@")
	return at > 0 && at < len(v)-1 && !strings.ContainsAny(v, " \t\n")
}
