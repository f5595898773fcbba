package authgw

import (
	"context"

	"github.com/hitoshi/postboard/internal/model"
)

// ResolutionRecorder はセッション解決結果のメトリクス記録のインターフェース。
type ResolutionRecorder interface {
	// RecordSessionResolution は解決結果を記録する。
	// outcomeは authenticated / anonymous / error のいずれか。
	RecordSessionResolution(outcome string)
}

// instrumentedResolver はリゾルバーをメトリクス記録でラップする。
type instrumentedResolver struct {
	inner    SessionResolver
	recorder ResolutionRecorder
}

// NewInstrumentedResolver はメトリクス記録付きのリゾルバーを返す。
func NewInstrumentedResolver(inner SessionResolver, recorder ResolutionRecorder) SessionResolver {
	return &instrumentedResolver{inner: inner, recorder: recorder}
}

// Resolve は内側のリゾルバーに委譲し、結果を記録する。
func (r *instrumentedResolver) Resolve(ctx context.Context, identity model.RequestIdentity) (*model.Session, error) {
	session, err := r.inner.Resolve(ctx, identity)
	switch {
	case err != nil:
		r.recorder.RecordSessionResolution("error")
	case session != nil:
		r.recorder.RecordSessionResolution("authenticated")
	default:
		r.recorder.RecordSessionResolution("anonymous")
	}
	return session, err
}
