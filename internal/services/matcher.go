package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/inletmail/inlet/internal/models"
	"github.com/inletmail/inlet/internal/repository"
)

// Matcher resolves a priority-ordered list of candidate recipient addresses
// to a routing rule.
type Matcher struct {
	mappings repository.MappingRepository
}

// NewMatcher creates a new Matcher instance
func NewMatcher(mappings repository.MappingRepository) *Matcher {
	return &Matcher{mappings: mappings}
}

// Match iterates candidates in the given order and returns the first rule
// found together with the normalized address that matched it. For each
// candidate an exact (user, domain) lookup runs first; wildcard rules for the
// domain are tried afterwards, longest pattern first. A (nil, "", nil) return
// is the normal no-match outcome, not an error.
func (m *Matcher) Match(ctx context.Context, candidates []string) (*models.Mapping, string, error) {
	for _, candidate := range candidates {
		addr := strings.ToLower(strings.TrimSpace(candidate))
		user, domain, ok := strings.Cut(addr, "@")
		if !ok || user == "" || domain == "" {
			continue
		}

		mapping, err := m.matchAddress(ctx, user, domain)
		if err != nil {
			return nil, "", err
		}
		if mapping != nil {
			return mapping, addr, nil
		}
	}
	return nil, "", nil
}

func (m *Matcher) matchAddress(ctx context.Context, user, domain string) (*models.Mapping, error) {
	mapping, err := m.mappings.FindByUserDomain(ctx, user, domain)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	wildcards, err := m.mappings.FindWildcardsByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	// Longest pattern wins ties: a longer literal prefix is more specific.
	sort.SliceStable(wildcards, func(i, j int) bool {
		return len(wildcards[i].EmailUser) > len(wildcards[j].EmailUser)
	})
	for i := range wildcards {
		if wildcards[i].Matches(user) {
			return &wildcards[i], nil
		}
	}
	return nil, nil
}
