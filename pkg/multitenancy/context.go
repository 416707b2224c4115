package multitenancy

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	instanceIDKey contextKey = "instance_id"
	orgIDKey      contextKey = "org_id"
	editorKey     contextKey = "editor"
)

// WithInstanceID adds an instance ID to the context.
func WithInstanceID(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, instanceIDKey, instanceID)
}

// InstanceID retrieves the instance ID from the context. The instance is
// the tenancy root: every store and query call requires one.
func InstanceID(ctx context.Context) (string, error) {
	instanceID, ok := ctx.Value(instanceIDKey).(string)
	if !ok || instanceID == "" {
		return "", ErrNoInstance
	}
	return instanceID, nil
}

// MustInstanceID retrieves the instance ID from the context or panics.
func MustInstanceID(ctx context.Context) string {
	instanceID, err := InstanceID(ctx)
	if err != nil {
		panic(err)
	}
	return instanceID
}

// HasInstanceID checks if the context carries an instance ID.
func HasInstanceID(ctx context.Context) bool {
	_, err := InstanceID(ctx)
	return err == nil
}

// WithOrgID adds an organization ID to the context.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// OrgID retrieves the organization ID from the context. Unlike the
// instance ID it is optional; instance-level operations run without one.
func OrgID(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgIDKey).(string)
	return orgID, ok && orgID != ""
}

// WithEditor records the acting subject for audit fields on emitted events.
func WithEditor(ctx context.Context, editor string) context.Context {
	return context.WithValue(ctx, editorKey, editor)
}

// Editor retrieves the acting subject, falling back to "system".
func Editor(ctx context.Context) string {
	editor, ok := ctx.Value(editorKey).(string)
	if !ok || editor == "" {
		return "system"
	}
	return editor
}
