package auth

const (
	ScopeSchemeRead  = "scheme:read"
	ScopeSchemeWrite = "scheme:write"
	// ScopeTransformExecute allows guard and post-action evaluation.
	ScopeTransformExecute = "transform:execute"
)

// AllScopes lists every scope the API checks.
var AllScopes = []string{
	ScopeSchemeRead,
	ScopeSchemeWrite,
	ScopeTransformExecute,
}
