package scope

import "context"

// This file specifies the minimum surface of the two optional external
// collaborators named in spec 4.2: SkillRegistry and CredentialCache. Their
// concrete implementations (skill discovery corpus, TF-IDF/embedding
// backends, Redis/in-memory caches) are out of scope per spec section 1;
// only the contracts are defined here, implemented by internal/skillindex
// and internal/credcache.

// SkillSearchOptions bounds a skill search (spec 4.2).
type SkillSearchOptions struct {
	Limit int
}

// RankedSkill is one ranked search hit.
type RankedSkill struct {
	ID          string
	Name        string
	Description string
	Score       float64
}

// LoadedSkill is the result of loading a skill: which of its declared
// tools are actually available in this scope, and whether the load is
// complete (spec 4.2).
type LoadedSkill struct {
	SkillID        string
	AvailableTools []string
	MissingTools   []string
	IsComplete     bool
	Warning        string
}

// SkillListOptions bounds a skill listing.
type SkillListOptions struct {
	Limit int
}

// SkillRegistry is the minimum surface spec 4.2 requires of the skill
// discovery collaborator.
type SkillRegistry interface {
	Search(ctx context.Context, query string, opts SkillSearchOptions) ([]RankedSkill, error)
	LoadSkill(ctx context.Context, id string) (*LoadedSkill, error)
	ListSkills(ctx context.Context, opts SkillListOptions) ([]RankedSkill, error)
}

// CredentialScope bounds a credential's eviction scope (spec 3 "Credential
// Cache Entry").
type CredentialScope string

const (
	CredScopeGlobal  CredentialScope = "global"
	CredScopeUser    CredentialScope = "user"
	CredScopeSession CredentialScope = "session"
)

// ResolvedCredential is the cached value behind a providerId key.
type ResolvedCredential struct {
	ProviderID string
	Value      any
	Scope      CredentialScope
}

// CacheStats reports credential cache counters (spec 4.2 "getStats").
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// CredentialCache is the minimum surface spec 4.2 requires.
type CredentialCache interface {
	Get(key string) (*ResolvedCredential, bool)
	Set(key string, resolved *ResolvedCredential, ttl ...int64) // ttlMs optional, 0 = default
	Has(key string) bool
	Invalidate(key string)
	InvalidateByScope(scope CredentialScope)
	Cleanup()
	GetStats() CacheStats
}
