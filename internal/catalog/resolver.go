package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ResolveInput carries the raw item fields used to identify a material.
type ResolveInput struct {
	Name        string
	Description string
	Code        string
	Category    string
	Unit        string
}

// Resolution is the outcome of resolving an item against the catalog.
type Resolution struct {
	Material Material
	Created  bool
}

// Resolver maps free-text item descriptions to canonical materials,
// creating one when nothing matches. Resolution is read-then-write and is
// only race-safe because it runs inside the same transaction as the invoice
// that triggered it; the (tenant, code) unique constraint backstops races
// between different transactions.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a resolver over a repository, typically tx-bound.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve finds or creates the material for the given item.
func (r *Resolver) Resolve(ctx context.Context, tenantID int64, input ResolveInput) (Resolution, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		code = ExtractCode(input.Name + " " + input.Description)
	}

	if code != "" {
		material, err := r.repo.GetByCode(ctx, tenantID, code)
		if err == nil {
			return Resolution{Material: material}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, fmt.Errorf("catalog: lookup code %s: %w", code, err)
		}

		if len(code) >= minSimilarCodeLen {
			material, err = r.repo.FindSimilarCode(ctx, tenantID, code)
			if err == nil {
				if err := r.repo.AddAltCode(ctx, material.ID, code); err != nil {
					return Resolution{}, fmt.Errorf("catalog: record alt code: %w", err)
				}
				return Resolution{Material: material}, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return Resolution{}, fmt.Errorf("catalog: similar code %s: %w", code, err)
			}
		}
	}

	material, found, err := r.matchByName(ctx, tenantID, input.Name)
	if err != nil {
		return Resolution{}, err
	}
	if found {
		if code != "" {
			if err := r.repo.AddAltCode(ctx, material.ID, code); err != nil {
				return Resolution{}, fmt.Errorf("catalog: record alt code: %w", err)
			}
		}
		return Resolution{Material: material}, nil
	}

	primary := code
	if primary == "" {
		primary = Slug(input.Name)
	}
	created, err := r.repo.Create(ctx, tenantID, CreateMaterialInput{
		Code:     primary,
		Name:     input.Name,
		Category: input.Category,
		Unit:     input.Unit,
		RefCode:  code,
	})
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Material: created, Created: true}, nil
}

// matchByName applies the name fallback over the tenant catalog, keeping the
// oldest matching row when several qualify.
func (r *Resolver) matchByName(ctx context.Context, tenantID int64, name string) (Material, bool, error) {
	if NormalizeName(name) == "" {
		return Material{}, false, nil
	}
	names, err := r.repo.ListNames(ctx, tenantID)
	if err != nil {
		return Material{}, false, fmt.Errorf("catalog: list names: %w", err)
	}
	for _, candidate := range names {
		if MatchNames(candidate.Name, name) {
			material, err := r.repo.Get(ctx, candidate.ID)
			if err != nil {
				return Material{}, false, fmt.Errorf("catalog: load match %d: %w", candidate.ID, err)
			}
			return material, true, nil
		}
	}
	return Material{}, false, nil
}
