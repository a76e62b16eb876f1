package ingest

import (
	"context"
	"errors"
	"fmt"

	"example.com/workoutprocessor/internal/domain"
)

// OwnerResolver determines the user a batch belongs to.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, batch domain.Batch) (int64, error)
}

// InlineOwner uses the user id carried by the event.
type InlineOwner struct{}

// ResolveOwner implements OwnerResolver.
func (InlineOwner) ResolveOwner(_ context.Context, batch domain.Batch) (int64, error) {
	if batch.UserID == nil {
		return 0, errors.New("ingest: event carries no user id")
	}
	return *batch.UserID, nil
}

// DirectoryOwner looks the event's username up in the user directory.
type DirectoryOwner struct {
	Directory domain.UserDirectory
}

// ResolveOwner implements OwnerResolver.
func (d DirectoryOwner) ResolveOwner(ctx context.Context, batch domain.Batch) (int64, error) {
	if d.Directory == nil {
		return 0, errors.New("ingest: no user directory configured")
	}
	id, err := d.Directory.FindUserIDByUsername(ctx, batch.Username)
	if err != nil {
		return 0, fmt.Errorf("ingest: resolve user %q: %w", batch.Username, err)
	}
	return id, nil
}

// ownerResolverFor picks the resolver matching the event shape: inline identity wins over lookup.
func ownerResolverFor(batch domain.Batch, directory domain.UserDirectory) OwnerResolver {
	if batch.UserID != nil {
		return InlineOwner{}
	}
	return DirectoryOwner{Directory: directory}
}

// resolveOwners returns the owning user id for each workout. The batch owner is only resolved
// when at least one workout lacks an inline id.
func (p *Pipeline) resolveOwners(ctx context.Context, batch domain.Batch, workouts []domain.WorkoutInput) ([]int64, error) {
	owners := make([]int64, len(workouts))
	var (
		batchOwner int64
		resolved   bool
	)
	for i, w := range workouts {
		if w.UserID != nil {
			owners[i] = *w.UserID
			continue
		}
		if !resolved {
			id, err := ownerResolverFor(batch, p.users).ResolveOwner(ctx, batch)
			if err != nil {
				return nil, err
			}
			batchOwner, resolved = id, true
		}
		owners[i] = batchOwner
	}
	return owners, nil
}
