package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios/lifecycle/pkg/model"
)

func TestResolveConfigPrecedence(t *testing.T) {
	templateID := uuid.New()
	action := &model.ScheduledAction{
		OrganizationID:  uuid.New(),
		ActionType:      model.ActionOffboard,
		TemplateID:      &templateID,
		ActionConfig:    model.JSONB{"email_action": "forward", "email_forward_to": "team@example.com", "reset_password": false},
		ConfigOverrides: model.JSONB{"email_action": "archive"},
	}
	templates := staticTemplates{defaults: model.JSONB{"sign_out_devices": false, "email_action": "delegate"}}

	cfg, err := ResolveConfig(context.Background(), templates, action)
	require.NoError(t, err)
	off, ok := cfg.(*OffboardingConfig)
	require.True(t, ok)

	assert.Equal(t, DispositionArchive, off.EmailAction, "override wins over action config and template")
	assert.False(t, off.SignOutDevices, "template default wins over built-in")
	assert.False(t, off.ResetPassword, "action config wins over built-in")
	assert.True(t, off.RevokeOAuthTokens, "built-in default kept")
	assert.Equal(t, DispositionSuspend, off.AccountAction)
}

func TestResolveConfigTemplateFailureIsInfrastructure(t *testing.T) {
	templateID := uuid.New()
	action := &model.ScheduledAction{ActionType: model.ActionRestore, TemplateID: &templateID}

	_, err := ResolveConfig(context.Background(), staticTemplates{err: errors.New("db down")}, action)
	assert.True(t, IsInfrastructure(err))
}

func TestDecodeConfigValidation(t *testing.T) {
	tests := []struct {
		name       string
		actionType model.ActionType
		raw        model.JSONB
		wantErr    bool
	}{
		{"onboard defaults", model.ActionOnboard, nil, false},
		{"onboard bad org unit", model.ActionOnboard, model.JSONB{"org_unit_path": "Sales"}, true},
		{"onboard signature without template", model.ActionOnboard, model.JSONB{"apply_signature": true}, true},
		{"onboard bad group", model.ActionOnboard, model.JSONB{"groups": []interface{}{"sales"}}, true},
		{"offboard transfer with target", model.ActionOffboard, model.JSONB{"drive_action": "transfer", "drive_transfer_to": "boss@example.com"}, false},
		{"offboard unknown disposition", model.ActionOffboard, model.JSONB{"calendar_action": "shred"}, true},
		{"delete bad transfer address", model.ActionDelete, model.JSONB{"transfer_data_to": "nobody"}, true},
		{"suspend bad recipient", model.ActionSuspend, model.JSONB{"notify_recipients": []interface{}{"hr"}}, true},
		{"wrong value type", model.ActionUnsuspend, model.JSONB{"reset_password": "yes"}, true},
		{"unknown type", model.ActionType("promote"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(tt.actionType, tt.raw)
			if tt.wantErr {
				assert.True(t, IsValidation(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDisabledStepsFollowConfig(t *testing.T) {
	cfg, err := DecodeConfig(model.ActionDelete, model.JSONB{"transfer_data_to": "archive@example.com"})
	require.NoError(t, err)
	catalog, _ := CatalogFor(model.ActionDelete)

	enabled := map[string]bool{}
	for _, step := range catalog {
		enabled[step.Name] = step.enabledFor(cfg)
	}
	assert.True(t, enabled[StepTransferData])
	assert.True(t, enabled[StepDeleteAccount])
	assert.False(t, enabled[StepSendNotifications])
}

func TestStepPredicatesReadTypedConfig(t *testing.T) {
	cfg, err := DecodeConfig(model.ActionOnboard, model.JSONB{
		"groups":             []interface{}{"eng@example.com"},
		"send_welcome_email": false,
	})
	require.NoError(t, err)
	catalog, _ := CatalogFor(model.ActionOnboard)

	enabled := map[string]bool{}
	for _, step := range catalog {
		enabled[step.Name] = step.enabledFor(cfg)
	}
	assert.True(t, enabled[StepCreateIdentityAccount])
	assert.True(t, enabled[StepAddToGroups])
	assert.False(t, enabled[StepApplyLicense])
	assert.False(t, enabled[StepSendWelcomeEmail])

	onboardOnly := when(func(c *OnboardingConfig) bool { return true })
	assert.True(t, onboardOnly(&OnboardingConfig{}))
	assert.False(t, onboardOnly(&SuspendConfig{}))
}
