// Package group sums the capital of a parent entity and the subsidiaries
// mapped under it into one group figure.
package group

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/metrics"
)

// MaxDepth bounds how many mapping levels a group may have
const MaxDepth = 8

// MappingSource serves the consolidation mappings in effect under a parent
type MappingSource interface {
	FetchConsolidationMappings(ctx context.Context, parentID string, asOf time.Time) ([]domain.ConsolidationMapping, error)
}

// Calculator runs one recorded capital calculation
type Calculator interface {
	Calculate(ctx context.Context, req calculation.Request) (*domain.CalculationResult, error)
}

// Member is one entity of the group and the share of its capital the
// group carries
type Member struct {
	EntityID       string                     `json:"entity_id"`
	ParentEntityID string                     `json:"parent_entity_id,omitempty"`
	MappingID      string                     `json:"mapping_id,omitempty"`
	Method         domain.ConsolidationMethod `json:"consolidation_method"`
	Depth          int                        `json:"depth"`
	// Weight is the product of the mapping weights from the group parent
	Weight       decimal.Decimal  `json:"weight"`
	RunID        string           `json:"run_id,omitempty"`
	Capital      decimal.Decimal  `json:"capital_requirement"`
	Contribution decimal.Decimal  `json:"contribution"`
	GateState    domain.GateState `json:"gate_state,omitempty"`
}

// Result is the group figure and its members
type Result struct {
	GroupEntityID string          `json:"group_entity_id"`
	AsOf          time.Time       `json:"as_of"`
	Method        domain.Method   `json:"method"`
	Members       []Member        `json:"members"`
	Excluded      []Member        `json:"excluded,omitempty"`
	TotalCapital  decimal.Decimal `json:"total_capital"`
	TotalRWA      decimal.Decimal `json:"total_rwa"`
	RunIDs        []string        `json:"run_ids"`
}

// Consolidator runs the member calculations and sums them
type Consolidator struct {
	Engine   Calculator
	Mappings MappingSource
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Limit bounds concurrent member calculations
	Limit int
}

// NewConsolidator creates a consolidator over engine and mappings
func NewConsolidator(engine Calculator, mappings MappingSource) *Consolidator {
	return &Consolidator{
		Engine:   engine,
		Mappings: mappings,
		Logger:   zap.NewNop(),
		Limit:    calculation.DefaultBatchLimit,
	}
}

// Consolidate calculates req.EntityID and every subsidiary mapped under it
// at req.AsOf with req.Method, and sums the weighted capital. Equity
// holdings are listed as excluded and not calculated. A hierarchy that
// reaches an entity twice is rejected. Any member failure fails the group.
func (c *Consolidator) Consolidate(ctx context.Context, req calculation.Request) (*Result, error) {
	members, excluded, err := c.walk(ctx, req.EntityID, req.AsOf)
	if err != nil {
		c.Metrics.ObserveConsolidation(false)
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Limit, 1))
	leverage := make([]decimal.Decimal, len(members))
	for i := range members {
		i := i
		g.Go(func() error {
			sub := req
			sub.EntityID = members[i].EntityID
			res, err := c.Engine.Calculate(gctx, sub)
			if err != nil {
				return eris.Wrapf(err, "group: calculate %s", sub.EntityID)
			}
			m := &members[i]
			m.RunID = res.RunID
			m.Capital = res.CapitalRequirement
			m.GateState = res.GateState
			m.Contribution = res.CapitalRequirement.Mul(m.Weight).Round(2)
			if !res.CapitalRequirement.IsZero() {
				leverage[i] = res.RiskWeightedAssets.Div(res.CapitalRequirement)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.Metrics.ObserveConsolidation(false)
		return nil, err
	}

	out := &Result{
		GroupEntityID: req.EntityID,
		AsOf:          req.AsOf,
		Method:        req.Method,
		Members:       members,
		Excluded:      excluded,
		TotalCapital:  decimal.Zero,
		TotalRWA:      decimal.Zero,
	}
	for i, m := range members {
		out.TotalCapital = out.TotalCapital.Add(m.Contribution)
		out.TotalRWA = out.TotalRWA.Add(m.Contribution.Mul(leverage[i]))
		out.RunIDs = append(out.RunIDs, m.RunID)
	}
	out.TotalRWA = out.TotalRWA.Round(2)

	c.Metrics.ObserveConsolidation(true)
	c.logger().Info("group consolidated",
		zap.String("group_entity_id", req.EntityID),
		zap.String("method", string(req.Method)),
		zap.Int("members", len(members)),
		zap.Int("excluded", len(excluded)),
		zap.String("total_capital", out.TotalCapital.StringFixed(2)))
	return out, nil
}

// walk lists the parent and its consolidated subsidiaries breadth first
func (c *Consolidator) walk(ctx context.Context, parentID string, asOf time.Time) ([]Member, []Member, error) {
	one := decimal.NewFromInt(1)
	members := []Member{{EntityID: parentID, Method: domain.ConsolidateFull, Weight: one}}
	seen := map[string]bool{parentID: true}
	var excluded []Member

	for i := 0; i < len(members); i++ {
		parent := members[i]
		mappings, err := c.Mappings.FetchConsolidationMappings(ctx, parent.EntityID, asOf)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "group: fetch mappings of %s", parent.EntityID)
		}
		for _, m := range mappings {
			if seen[m.ChildEntityID] {
				return nil, nil, &domain.DomainComputationError{
					EntityID: parentID,
					Field:    "child_entity_id",
					Detail:   fmt.Sprintf("entity %s is reached twice in the group of %s", m.ChildEntityID, parentID),
				}
			}
			if parent.Depth+1 > MaxDepth {
				return nil, nil, &domain.DomainComputationError{
					EntityID: parentID,
					Field:    "parent_entity_id",
					Detail:   fmt.Sprintf("group of %s is deeper than %d levels", parentID, MaxDepth),
				}
			}
			seen[m.ChildEntityID] = true
			child := Member{
				EntityID:       m.ChildEntityID,
				ParentEntityID: parent.EntityID,
				MappingID:      m.ID,
				Method:         m.Method,
				Depth:          parent.Depth + 1,
				Weight:         parent.Weight.Mul(m.Weight()),
			}
			if child.Weight.IsZero() {
				excluded = append(excluded, child)
				continue
			}
			members = append(members, child)
		}
	}
	return members, excluded, nil
}

func (c *Consolidator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
