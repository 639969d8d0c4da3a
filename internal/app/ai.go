package app

import (
	"context"
	"encoding/json"
	"net/http"

	"stride/api/internal/ai"
	"stride/api/internal/auth"
	"stride/api/internal/logging"
	"stride/api/internal/rbac"
)

var errAIUnavailable = domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI features are not enabled", nil)

// Assist forwards one AI feature request to the provider and returns its JSON
// object unchanged. Field validation and the session lookup happen before this.
func (s *Service) Assist(ctx context.Context, actor *auth.Session, feature ai.Feature) (json.RawMessage, error) {
	name := feature.Name()
	if !allowed(actor, rbac.PermAIUse) {
		s.metrics.AIRequest(name, "unauthorized")
		return nil, errForbidden
	}
	settings, err := s.settings(ctx)
	if err != nil {
		s.metrics.AIRequest(name, "error")
		return nil, err
	}
	if !settings.AI.Enabled || s.ai == nil {
		s.metrics.AIRequest(name, "unavailable")
		return nil, errAIUnavailable
	}

	req := feature.Request()
	req.Model = settings.AI.Model
	out, err := s.ai.Complete(ctx, req)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("feature", name).Error("ai completion failed")
		s.metrics.AIRequest(name, "error")
		return nil, domainError(http.StatusInternalServerError, "AI_PROVIDER_ERROR", feature.FailureMessage(), nil)
	}
	s.metrics.AIRequest(name, "success")
	return out, nil
}
