package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/ticket-inventory/internal/inventory"
	"github.com/iliyamo/ticket-inventory/internal/rangecodec"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "syntax_error", Outcome(&rangecodec.SyntaxError{}))
	assert.Equal(t, "overlap", Outcome(&rangecodec.OverlapError{}))
	assert.Equal(t, "state_violation", Outcome(&inventory.StateViolationError{}))
	assert.Equal(t, "capacity_exceeded", Outcome(&inventory.CapacityError{}))
	assert.Equal(t, "not_found", Outcome(&inventory.NotFoundError{Kind: "schedule"}))
	assert.Equal(t, "invalid_request", Outcome(inventory.InvalidRequest("missing agent")))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(UnitsTransitioned.WithLabelValues("test_op"))
	Observe("test_op", 3, nil)
	Observe("test_op", 5, errors.New("failed"))
	assert.Equal(t, before+3, testutil.ToFloat64(UnitsTransitioned.WithLabelValues("test_op")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues("test_op", "error")))
}
