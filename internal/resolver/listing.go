package resolver

import (
	"context"
	"fmt"

	"payables-relay/internal/chains"
	"payables-relay/internal/models"
)

// DefaultPageSize bounds listing responses.
const DefaultPageSize = 25

// ListIDs resolves one page of entity ids owned by owner, strictly most
// recent first. total is the owner's on-chain counter for kind; page is
// 1-based.
//
// A missing id at any position aborts the whole listing: a gap in the
// counter sequence means either a wrong owner or a race with an in-flight
// chain write, and silently skipping it would return a list that looks
// complete but is not.
func (r *Resolver) ListIDs(ctx context.Context, ch chains.Chain, owner string, kind models.Kind, total uint64, page, pageSize int) ([]string, error) {
	if page < 1 {
		return nil, fmt.Errorf("page is 1-based, got %d", page)
	}
	if pageSize <= 0 || pageSize > DefaultPageSize*4 {
		pageSize = DefaultPageSize
	}

	skip := uint64(page-1) * uint64(pageSize)
	if skip >= total {
		return []string{}, nil
	}
	start := total - skip
	end := uint64(1)
	if start > uint64(pageSize) {
		end = start - uint64(pageSize) + 1
	}

	ids := make([]string, 0, start-end+1)
	for count := start; count >= end; count-- {
		id, ok, err := r.ResolveID(ctx, ch, owner, kind, count)
		if err != nil {
			return nil, fmt.Errorf("resolving %s #%d of %s on %s: %w", kind, count, owner, ch.Name, err)
		}
		if !ok {
			return nil, fmt.Errorf("listing aborted: %s #%d of %s on %s is not recorded (total=%d)", kind, count, owner, ch.Name, total)
		}
		ids = append(ids, id)
		if count == 1 {
			break
		}
	}
	return ids, nil
}
