package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"corenet/internal/domain"
	"corenet/internal/observability"
	"corenet/internal/validation"
)

// PlanNetwork validates req and returns its plan without provisioning
// anything.
func PlanNetwork(name string, req domain.AddressSpaceRequest) ([]domain.TopologyNode, error) {
	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("network name: %w", err)
	}
	if err := validation.ValidateRequest(req); err != nil {
		return nil, err
	}
	return Plan(name, req), nil
}

// BuildNetwork runs the whole pipeline for one network: validate, plan,
// then realize every node. Validation failures return before the
// provisioner is called. On a build failure the partially realized topology
// is returned with the error.
func (b *Builder) BuildNetwork(ctx context.Context, name string, req domain.AddressSpaceRequest) (*domain.RealizedTopology, error) {
	ctx = observability.WithRunID(ctx, uuid.NewString())
	logger := b.logger.With("network", name)

	nodes, err := PlanNetwork(name, req)
	if err != nil {
		b.metrics.RecordValidationFailure(validation.KindLabel(err))
		b.metrics.RecordBuild("invalid")
		logger.WarnContext(ctx, "address space rejected", "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "network planned", "nodes", len(nodes), "egress_subnet", req.EgressSubnet)

	realized, err := b.Build(ctx, req, nodes)
	if err != nil {
		b.metrics.RecordBuild("failed")
		var berr *BuildError
		if errors.As(err, &berr) {
			logger.ErrorContext(ctx, "network build stopped",
				"node_id", berr.NodeID,
				"realized", len(realized.Order),
				"created", berr.Created.ID,
				"error", err,
			)
		}
		return realized, err
	}
	b.metrics.RecordBuild("success")
	logger.InfoContext(ctx, "network built", "nodes", len(realized.Order))
	return realized, nil
}
