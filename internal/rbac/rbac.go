// Package rbac is the single source of truth for "who may do what" in the
// admin surface. Navigation entries and action buttons are hidden when a
// check fails, and the same check is enforced again at the routing layer.
package rbac

import "reportmitra.org/internal/upstream"

// Feature names a gated capability of the admin surface.
type Feature string

const (
	FeatureCreateAccount Feature = "account.create"
	FeatureDeleteAccount Feature = "account.delete"
	FeatureToggleStatus  Feature = "account.toggle-status"
	FeatureViewLogs      Feature = "activity.logs"

	FeatureViewIssues   Feature = "issues.view"
	FeatureManageIssues Feature = "issues.manage"
	FeatureViewAccounts Feature = "accounts.view"
)

type requirement struct {
	rootOnly bool
}

var features = map[Feature]requirement{
	FeatureCreateAccount: {rootOnly: true},
	FeatureDeleteAccount: {rootOnly: true},
	FeatureToggleStatus:  {rootOnly: true},
	FeatureViewLogs:      {rootOnly: true},

	FeatureViewIssues:   {},
	FeatureManageIssues: {},
	FeatureViewAccounts: {},
}

// RootOnlyFeatures lists every capability reserved to root administrators.
func RootOnlyFeatures() []Feature {
	out := make([]Feature, 0, len(features))
	for f, req := range features {
		if req.rootOnly {
			out = append(out, f)
		}
	}
	return out
}

// CanAccess reports whether the user may use the feature. Unknown features
// are denied.
func CanAccess(feature Feature, user upstream.CurrentUser) bool {
	req, ok := features[feature]
	if !ok {
		return false
	}
	return !req.rootOnly || user.IsRoot
}
