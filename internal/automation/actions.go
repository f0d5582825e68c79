package automation

import "github.com/sirupsen/logrus"

// RegisterBuiltinActions installs the built-in adapters: the masking log
// action, the webhook action over the given transport, and the conditional
// action delegating branches through the given executor.
func RegisterBuiltinActions(registry *ActionRegistry, executor PlanExecutor, transport WebhookTransport, logger *logrus.Logger) error {
	if err := registry.Register(ActionKeyInternalLog, NewLogAction(logger)); err != nil {
		return err
	}
	if err := registry.Register(ActionKeyWebhook, NewWebhookAction(transport)); err != nil {
		return err
	}
	return registry.Register(ActionKeyConditional, NewConditionalAction(executor))
}
