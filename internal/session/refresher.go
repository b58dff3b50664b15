package session

import (
	"context"
	"errors"
	"fmt"

	"custody/go-client/internal/activity"
	"custody/go-client/pkg/models"
)

const (
	refreshPath = "/public/v1/submit/stamp_login"
	refreshType = "ACTIVITY_TYPE_STAMP_LOGIN"
)

// Executor is the slice of the activity client the refresher drives.
type Executor interface {
	Execute(ctx context.Context, req activity.Request, out any) error
}

// ActivityRefresher implements session refresh as a stamp-login activity:
// the session's own backend key stamps the request, and the completed
// activity's merged result carries the replacement JWT.
type ActivityRefresher struct {
	exec Executor
}

func NewActivityRefresher(exec Executor) (*ActivityRefresher, error) {
	if exec == nil {
		return nil, errors.New("activity refresher requires an executor")
	}
	return &ActivityRefresher{exec: exec}, nil
}

func (r *ActivityRefresher) RefreshSession(ctx context.Context, sess models.Session, expirationSeconds string) (string, error) {
	var out struct {
		Session string `json:"session"`
	}
	err := r.exec.Execute(ctx, activity.Request{
		Path:           refreshPath,
		Type:           refreshType,
		OrganizationID: sess.OrganizationID,
		Parameters: map[string]string{
			"publicKey":         sess.PublicKey,
			"expirationSeconds": expirationSeconds,
		},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Session == "" {
		return "", fmt.Errorf("%w: refresh returned no session token", activity.ErrInvalidResponse)
	}
	return out.Session, nil
}
