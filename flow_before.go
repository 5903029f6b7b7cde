package tokenflow

import (
	"context"
	"fmt"

	"github.com/MrEthical07/tokenflow/refresh"
)

// OnAuthRequired wraps a before-request hook.
//
// Visitor methods go straight to next. Login methods skip token assignment.
// Every other method first waits out an in-flight refresh; in the client
// variant protected and logout methods then run the refresh check
// (RefreshToken.IsExpired / Handler) through the coordinator. AssignToken runs
// next, and next runs last. A refresh or assignment failure aborts the send.
func (a *Authenticator) OnAuthRequired(next BeforeRequestFunc) BeforeRequestFunc {
	return func(ctx context.Context, m *Method) error {
		if m == nil {
			return ErrNilMethod
		}

		role := a.Role(m)
		switch role {
		case RoleVisitor:
			a.metrics.Inc(MetricVisitorBypass)
			return callBefore(ctx, next, m)
		case RoleLogin:
			return callBefore(ctx, next, m)
		case RoleProtected, RoleLogout:
			if err := a.refreshBeforeSend(ctx, m); err != nil {
				return err
			}
		}

		if err := a.assignToken(ctx, m, role); err != nil {
			return err
		}
		return callBefore(ctx, next, m)
	}
}

func (a *Authenticator) refreshBeforeSend(ctx context.Context, m *Method) error {
	key := a.key(m)
	if _, err := a.coordinator.Wait(ctx, key); err != nil {
		return err
	}

	rt := a.cfg.RefreshToken
	if a.variant != variantClient || rt == nil {
		return nil
	}

	outcome, err := a.coordinator.Run(ctx, key,
		func(ctx context.Context) (bool, error) {
			return rt.IsExpired(ctx, m)
		},
		func(hctx context.Context) error {
			return rt.Handler(hctx, m)
		},
	)
	if err != nil {
		if outcome == refresh.Refreshed {
			return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		return err
	}
	return nil
}

func (a *Authenticator) assignToken(ctx context.Context, m *Method, role Role) error {
	if a.cfg.AssignToken == nil {
		return nil
	}
	if err := a.cfg.AssignToken(ctx, m); err != nil {
		a.metrics.Inc(MetricAssignTokenFailure)
		a.logger.Debug("assign token failed", "method_id", m.ID(), "error", err)
		a.emit(ctx, EventAssignFailed, m, role, "", 0, err)
		return fmt.Errorf("%w: %w", ErrAssignToken, err)
	}
	return nil
}

func callBefore(ctx context.Context, next BeforeRequestFunc, m *Method) error {
	if next == nil {
		return nil
	}
	return next(ctx, m)
}
